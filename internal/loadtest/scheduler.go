package loadtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surgehq/surge/internal/rate"
)

// Scheduler drives a run: it dispatches MaxRequests attempts paced at
// QPS (offered-load semantics — the dispatch timer never waits on a
// request to finish) and joins all in-flight workers before declaring
// the run complete. Each dispatched attempt records exactly one result
// with the collector, on every path, so the finalized result set always
// matches the dispatch count.
type Scheduler struct {
	spec      *RequestSpec
	issuer    *Issuer
	collector *Collector

	qps         float64
	maxRequests int

	// runTimeout caps the whole run. Zero means derive a deadline from
	// maxRequests/qps plus slack for the last requests to drain.
	runTimeout time.Duration

	// grace bounds how long we wait for stragglers after the last
	// dispatch before abandoning them (they record as timeouts).
	grace time.Duration

	launched atomic.Int64
	running  atomic.Bool
}

// SchedulerConfig configures a run.
type SchedulerConfig struct {
	QPS         float64
	MaxRequests int
	RunTimeout  time.Duration
	GracePeriod time.Duration
}

// NewScheduler creates a scheduler. QPS must already be validated > 0.
func NewScheduler(spec *RequestSpec, issuer *Issuer, collector *Collector, cfg SchedulerConfig) *Scheduler {
	grace := cfg.GracePeriod
	if grace == 0 {
		grace = 30 * time.Second
	}
	return &Scheduler{
		spec:        spec,
		issuer:      issuer,
		collector:   collector,
		qps:         cfg.QPS,
		maxRequests: cfg.MaxRequests,
		runTimeout:  cfg.RunTimeout,
		grace:       grace,
	}
}

// Launched returns how many attempts have been dispatched so far.
func (s *Scheduler) Launched() int64 {
	return s.launched.Load()
}

// IsRunning reports whether a run is in progress.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Progress returns dispatch progress in [0.0, 1.0].
func (s *Scheduler) Progress() float64 {
	if s.maxRequests == 0 {
		return 1.0
	}
	return float64(s.launched.Load()) / float64(s.maxRequests)
}

// deadline derives the overall run deadline: either the configured run
// timeout, or the nominal run length plus slack for the final requests
// to complete.
func (s *Scheduler) deadline() time.Duration {
	if s.runTimeout > 0 {
		return s.runTimeout
	}
	nominal := time.Duration(float64(s.maxRequests) / s.qps * float64(time.Second))
	return nominal + s.spec.Timeout + s.grace
}

// Run executes the full run and blocks until every dispatched attempt
// has recorded its result. It returns the number of attempts dispatched.
//
// Cancellation of ctx stops dispatching new attempts; in-flight
// attempts are given the grace period to finish and are abandoned
// (recorded as timeouts) past it.
func (s *Scheduler) Run(ctx context.Context) int64 {
	s.running.Store(true)
	defer s.running.Store(false)

	if s.maxRequests == 0 {
		return 0
	}

	// The dispatch loop stops at the run deadline; workers get their
	// own cancel so stragglers can be abandoned after the grace period
	// without being tied to the dispatch deadline.
	dispatchCtx, stopDispatch := context.WithTimeout(ctx, s.deadline())
	defer stopDispatch()

	workerCtx, abandonWorkers := context.WithCancel(ctx)
	defer abandonWorkers()

	pacer := rate.NewPacer(s.qps)
	var wg sync.WaitGroup

	for int(s.launched.Load()) < s.maxRequests {
		if err := pacer.Wait(dispatchCtx); err != nil {
			break
		}
		s.launched.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.collector.Record(s.issuer.Issue(workerCtx, s.spec))
		}()
	}

	// Join workers. Each is bounded by its own per-attempt timeout; the
	// grace period is a backstop for requests with no timeout or a
	// stalled transport. Abandoned workers still record (as timeouts),
	// so the wait after cancellation is short and the result-count
	// invariant holds.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.grace):
		abandonWorkers()
		<-done
	}

	return s.launched.Load()
}
