package actuator

import (
	"context"
	"sync"
)

// Signal is a resettable readiness gate. Wait blocks until Set has been
// called (and not undone by Reset) or ctx is done.
type Signal struct {
	mu    sync.Mutex
	ready chan struct{}
	set   bool
}

var _ Precondition = (*Signal)(nil)

func NewSignal() *Signal {
	return &Signal{ready: make(chan struct{})}
}

func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ready)
	}
}

func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ready = make(chan struct{})
	}
}

func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

func (s *Signal) Wait(ctx context.Context) error {
	s.mu.Lock()
	ch := s.ready
	s.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
