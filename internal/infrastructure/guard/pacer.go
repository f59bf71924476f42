package guard

import (
	"context"
	"math/rand/v2"
	"time"

	"FilingMonitor/internal/ports"
)

// RandomPacer sleeps for a uniformly random duration in [Min, Max] on every Wait.
type RandomPacer struct {
	Min time.Duration
	Max time.Duration

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ ports.Pacer = (*RandomPacer)(nil)

// NewRandomPacer builds a pacer; a reversed range is normalised.
func NewRandomPacer(minDelay, maxDelay time.Duration) *RandomPacer {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
		if minDelay < 0 {
			minDelay = 0
		}
	}
	return &RandomPacer{Min: minDelay, Max: maxDelay, sleep: sleepContext}
}

// Wait blocks for the next delay or until ctx is done.
func (p *RandomPacer) Wait(ctx context.Context) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, p.Next())
}

// Next draws the next delay.
func (p *RandomPacer) Next() time.Duration {
	span := p.Max - p.Min
	if span <= 0 {
		return p.Min
	}
	return p.Min + rand.N(span+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoPacer never waits; used by tests and one-shot tools.
type NoPacer struct{}

// Wait returns immediately unless ctx is already done.
func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }
