// Package rate provides request pacing for load generation.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Pacer schedules dispatch ticks at a fixed rate using a leaky-bucket
// style drip: each call to Next returns the wall-clock time at which the
// next request should be issued. The pacer never waits on request
// completion, so the offered rate is independent of response latency.
//
// If the caller falls behind schedule (e.g. the dispatch loop was
// briefly descheduled), Next snaps back to "now" rather than bursting
// to catch up.
//
// Pacer is safe for concurrent use, though the dispatch loop is
// normally a single goroutine.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time

	ticks atomic.Int64
}

// NewPacer creates a pacer targeting qps dispatches per second.
// qps must be > 0; configuration validation rejects other values
// before a pacer is ever constructed.
func NewPacer(qps float64) *Pacer {
	if qps <= 0 {
		qps = 1.0
	}
	return &Pacer{
		interval: time.Duration(float64(time.Second) / qps),
	}
}

// Interval returns the fixed inter-dispatch interval (1/qps).
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Next returns when the next dispatch should happen. The first call
// returns immediately; each subsequent call advances the schedule by
// one interval.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if p.next.Before(now) {
		// First tick, or we are behind schedule: dispatch now and
		// restart the drip from here instead of bursting.
		p.next = now
	}

	tick := p.next
	p.next = p.next.Add(p.interval)
	p.ticks.Add(1)
	return tick
}

// Wait blocks until the next dispatch tick or until ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	tick := p.Next()

	d := time.Until(tick)
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

// Ticks returns how many dispatch slots have been handed out.
func (p *Pacer) Ticks() int64 {
	return p.ticks.Load()
}
