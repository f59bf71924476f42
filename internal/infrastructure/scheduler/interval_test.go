package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalSchedulerRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	var runs atomic.Int32
	first := make(chan struct{}, 1)
	s := NewIntervalScheduler(time.Hour)

	err := s.Start(context.Background(), func(time.Time) {
		runs.Add(1)
		select {
		case first <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-first:
	case <-time.After(5 * time.Second):
		t.Fatalf("job did not run on start")
	}

	if err := s.Start(context.Background(), func(time.Time) { runs.Add(100) }); err != nil {
		t.Fatalf("second start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := runs.Load(); got != 1 {
		t.Fatalf("expected exactly one run, got %d", got)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop twice: %v", err)
	}
}

func TestIntervalSchedulerEndsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	s := NewIntervalScheduler(time.Millisecond)
	if err := s.Start(ctx, func(time.Time) {}); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := s.Done()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not exit after cancellation")
	}
}
