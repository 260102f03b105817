package reasoning

import (
	"context"
	"errors"
	"sync"
)

// ErrNoReplies is returned by a StaticClient that has run out of canned
// replies.
var ErrNoReplies = errors.New("static client: no replies left")

// StaticClient replays canned replies in order. It backs the `simulate`
// command and tests, where a live backend is unavailable or undesirable.
type StaticClient struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
}

// NewStaticClient returns a client that yields the given replies in order.
func NewStaticClient(replies ...string) *StaticClient {
	return &StaticClient{replies: replies}
}

// NewFailingClient returns a client whose calls fail with the given errors
// in order, then with ErrNoReplies.
func NewFailingClient(errs ...error) *StaticClient {
	return &StaticClient{errs: errs}
}

// Generate implements the Client interface.
func (s *StaticClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	if call < len(s.errs) {
		return "", s.errs[call]
	}
	idx := call - len(s.errs)
	if idx < len(s.replies) {
		return s.replies[idx], nil
	}
	return "", ErrNoReplies
}

// Calls returns how many times Generate was invoked.
func (s *StaticClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
