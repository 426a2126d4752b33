package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HeartbeatScheduler runs one heartbeat task per connection.
type HeartbeatScheduler struct {
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	tasks  map[string]*Heartbeat
	wg     sync.WaitGroup
}

// NewHeartbeatScheduler creates a scheduler. A nil logger discards output.
func NewHeartbeatScheduler(logger *slog.Logger) *HeartbeatScheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HeartbeatScheduler{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*Heartbeat),
	}
}

// Schedule starts hb under key, replacing and stopping any previous task
// with the same key.
func (s *HeartbeatScheduler) Schedule(key string, hb *Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if prev, ok := s.tasks[key]; ok {
		prev.Stop()
	}
	s.tasks[key] = hb

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		hb.Run(s.ctx)
	}()
	return nil
}

// Cancel stops the task under key. A ping already being written finishes.
func (s *HeartbeatScheduler) Cancel(key string) {
	s.mu.Lock()
	hb, ok := s.tasks[key]
	delete(s.tasks, key)
	s.mu.Unlock()
	if ok {
		hb.Stop()
	}
}

// Len returns the number of scheduled tasks.
func (s *HeartbeatScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown stops accepting tasks, stops all running ones, and waits up to
// grace for them to return. Tasks still running after grace are cancelled.
// It returns false if anything had to be force-cancelled.
func (s *HeartbeatScheduler) Shutdown(grace time.Duration) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}
	s.closed = true
	running := len(s.tasks)
	for key, hb := range s.tasks {
		hb.Stop()
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		s.cancel()
		return true
	case <-timer.C:
		s.cancel()
		s.logger.Warn("heartbeat shutdown forced", "tasks", running, "grace", grace)
		return false
	}
}
