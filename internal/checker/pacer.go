package checker

import (
	"context"
	"time"
)

// DefaultPaceInterval is the pause enforced between two consecutive probes.
const DefaultPaceInterval = time.Second

// Pacer enforces a fixed pause between probes. The Collector calls Wait after
// a probe has finished and before the next one starts, never before the first,
// so a slow response never shortens the pause that follows it.
type Pacer struct {
	interval time.Duration
}

// NewPacer creates a Pacer. An interval of zero or less disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait sleeps for the full interval. It returns ctx.Err() if ctx is done
// first.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
