package breaker

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: got %v, want errBoom", i, err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN", got)
	}

	err := b.Execute(func() error {
		t.Fatal("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("got %v, want ErrOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, OpenTimeout: time.Minute})

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })

	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want CLOSED", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: 10 * time.Millisecond})

	_ = b.Execute(func() error { return errBoom })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN", got)
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after probe = %v, want CLOSED", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, OpenTimeout: 10 * time.Millisecond})

	_ = b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	_ = b.Execute(func() error { return errBoom })
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want OPEN after half-open failure", got)
	}
}

func TestBreakerStateChangeCallback(t *testing.T) {
	changes := make(chan State, 4)
	b := New(Config{
		FailureThreshold: 1,
		OpenTimeout:      time.Minute,
		OnStateChange:    func(from, to State) { changes <- to },
	})

	_ = b.Execute(func() error { return errBoom })

	select {
	case to := <-changes:
		if to != StateOpen {
			t.Fatalf("transition to %v, want OPEN", to)
		}
	case <-time.After(time.Second):
		t.Fatal("no state change callback")
	}
}
