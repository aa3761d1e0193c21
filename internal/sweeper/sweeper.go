// Package sweeper runs the periodic cleanup of stale pending orders so
// abandoned checkouts release their reserved stock.
package sweeper

import (
	"context"
	"log"
	"sync"
	"time"
)

type Canceller interface {
	CancelStalePending(ctx context.Context) (int, error)
}

type Sweeper struct {
	svc      Canceller
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(svc Canceller, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{svc: svc, interval: interval}
}

// Start launches the sweep loop. It runs one pass immediately, then ticks
// until Stop is called or the parent context ends. Calling Start twice is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log.Printf("[sweeper] started, interval=%s", s.interval)
		s.sweep(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[sweeper] stopped")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for the in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.svc.CancelStalePending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[sweeper] WARN: sweep failed: %v", err)
		}
		return
	}
	if n > 0 {
		log.Printf("[sweeper] cancelled %d stale pending orders", n)
	}
}
