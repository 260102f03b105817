// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package breaker implements a circuit breaker for external service calls.
//
// The reasoning backend is the slowest collaborator in the workflow; when it
// is down, every run would otherwise spend its full timeout (plus the retry)
// discovering that. The breaker makes a dead backend fail fast so the
// deterministic fallbacks kick in immediately.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker state.
//
//	CLOSED ──[failure threshold]──► OPEN
//	   ▲                              │
//	   │                         [timeout]
//	   └───[success]◄── HALF_OPEN ◄──┘
type State int

const (
	// StateClosed is normal operation; calls flow through.
	StateClosed State = iota

	// StateOpen means the breaker tripped; calls are rejected immediately.
	StateOpen

	// StateHalfOpen allows a probe call to test recovery.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrOpen is returned when the breaker rejects a call without executing it.
var ErrOpen = errors.New("circuit breaker is open")

// Config controls when the breaker trips and recovers.
type Config struct {
	// FailureThreshold is consecutive failures before opening.
	// Default: 3
	FailureThreshold int

	// SuccessThreshold is consecutive successes to close from half-open.
	// Default: 1
	SuccessThreshold int

	// OpenTimeout is how long to stay open before allowing a probe.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// OnStateChange, if set, is called on every transition.
	OnStateChange func(from, to State)
}

// DefaultConfig returns sensible defaults for the reasoning backend.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
	}
}

// Breaker implements the circuit breaker pattern.
//
// Thread-safe. The zero value is not usable; construct with New.
type Breaker struct {
	config      Config
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	mu          sync.Mutex
}

// New creates a breaker in the closed state, applying defaults for zero
// config values.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	return &Breaker{config: config, state: StateClosed}
}

// Execute runs fn if the breaker allows it.
//
// Returns ErrOpen without calling fn when the breaker is open and the open
// timeout has not elapsed. Otherwise runs fn and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state, accounting for open-timeout expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.config.OpenTimeout {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) >= b.config.OpenTimeout {
			b.transition(StateHalfOpen)
			return nil
		}
		return ErrOpen
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.config.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.successes = 0
	b.failures++
	b.lastFailure = time.Now()
	if b.state == StateHalfOpen || b.failures >= b.config.FailureThreshold {
		b.transition(StateOpen)
	}
}

// transition changes state and fires the callback. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.failures = 0
	b.successes = 0
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(from, to)
	}
}
