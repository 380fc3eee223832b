// Package schedule runs recurring work that parks itself while idle.
package schedule

import (
	"context"
	"time"
)

// Periodic calls Tick every Interval while Active reports true. When Active
// turns false the ticker is stopped and the loop parks until Wake is called.
// Tick runs on the Run goroutine only, so ticks never overlap.
type Periodic struct {
	interval time.Duration
	active   func() bool
	tick     func(now time.Time)
	wake     chan struct{}
}

// NewPeriodic creates a scheduler. A nil active func means always active.
func NewPeriodic(interval time.Duration, active func() bool, tick func(now time.Time)) *Periodic {
	if active == nil {
		active = func() bool { return true }
	}
	return &Periodic{
		interval: interval,
		active:   active,
		tick:     tick,
		wake:     make(chan struct{}, 1),
	}
}

// Wake nudges a parked loop to re-check Active. Never blocks.
func (p *Periodic) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled
func (p *Periodic) Run(ctx context.Context) {
	for {
		if !p.active() {
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
				continue
			}
		}

		// became active: tick right away, then on the interval
		p.tick(time.Now())
		if !p.runTicker(ctx) {
			return
		}
	}
}

// runTicker ticks until the work dries up (true) or ctx ends (false)
func (p *Periodic) runTicker(ctx context.Context) bool {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.C:
			if !p.active() {
				return true
			}
			p.tick(now)
		case <-p.wake:
			// already running
		}
	}
}
