package sweeper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingCanceller struct {
	calls atomic.Int64
}

func (c *countingCanceller) CancelStalePending(context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSweeperRunsImmediatelyAndTicks(t *testing.T) {
	c := &countingCanceller{}
	s := New(c, 20*time.Millisecond)
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for c.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d sweeps before deadline", c.calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	c := &countingCanceller{}
	s := New(c, time.Hour)
	s.Start(context.Background())
	s.Stop()
	s.Stop()

	if c.calls.Load() != 1 {
		t.Fatalf("calls = %d, want the single immediate pass", c.calls.Load())
	}
}

func TestSweeperDoubleStart(t *testing.T) {
	c := &countingCanceller{}
	s := New(c, time.Hour)
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
}
