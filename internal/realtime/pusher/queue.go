package pusher

import (
	"log/slog"
	"sync"
)

// serialQueue runs callbacks one at a time in enqueue order. The goroutine that finds
// the queue idle drains it; callbacks that enqueue more work do not block.
type serialQueue struct {
	mu      sync.Mutex
	q       []func()
	running bool
	logger  *slog.Logger
}

func (s *serialQueue) enqueue(fn func()) {
	s.mu.Lock()
	s.q = append(s.q, fn)
	s.mu.Unlock()
}

func (s *serialQueue) drain() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	for len(s.q) > 0 {
		next := s.q[0]
		s.q[0] = nil
		s.q = s.q[1:]
		s.mu.Unlock()
		s.run(next)
		s.mu.Lock()
	}
	s.running = false
	s.mu.Unlock()
}

func (s *serialQueue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pusher: handler panicked", "panic", r)
		}
	}()
	fn()
}
