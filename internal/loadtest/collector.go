package loadtest

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector is the single shared sink for concurrently completing
// attempts. Workers never share any mutable state except this append
// point. Alongside the authoritative result slice it maintains an HDR
// histogram and atomic counters so the live progress display can read
// a cheap snapshot mid-run without touching the slice.
type Collector struct {
	mu      sync.Mutex
	results []RequestResult

	// Live view. The histogram backs in-run percentile display only;
	// the final report recomputes percentiles exactly from the
	// finalized result set.
	hist   *hdrhistogram.Histogram
	histMu sync.Mutex

	total  atomic.Int64
	errors atomic.Int64
}

// NewCollector creates a collector sized for the expected attempt count.
func NewCollector(capacity int) *Collector {
	if capacity < 0 {
		capacity = 0
	}
	return &Collector{
		results: make([]RequestResult, 0, capacity),
		// 1µs..1h, 3 significant figures.
		hist: hdrhistogram.New(1, 3600000000, 3),
	}
}

// Record appends one result. Safe for concurrent use; never blocks on
// readers of the live view.
func (c *Collector) Record(r RequestResult) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()

	c.histMu.Lock()
	c.hist.RecordValue(r.Latency.Microseconds())
	c.histMu.Unlock()

	c.total.Add(1)
	if !r.OK() {
		c.errors.Add(1)
	}
}

// Count returns how many results have been recorded so far.
func (c *Collector) Count() int64 {
	return c.total.Load()
}

// LiveStats is a point-in-time view for progress display during the run.
type LiveStats struct {
	Completed int64
	Errors    int64
	Mean      time.Duration
	P95       time.Duration
}

// Live returns a snapshot of the in-run counters and histogram.
func (c *Collector) Live() LiveStats {
	c.histMu.Lock()
	mean := time.Duration(c.hist.Mean()) * time.Microsecond
	p95 := time.Duration(c.hist.ValueAtQuantile(95)) * time.Microsecond
	c.histMu.Unlock()

	return LiveStats{
		Completed: c.total.Load(),
		Errors:    c.errors.Load(),
		Mean:      mean,
		P95:       p95,
	}
}

// Finalize returns the immutable result set. It must only be called
// after the scheduler has joined all workers; from then on the
// collector is read-only.
func (c *Collector) Finalize() ResultSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(ResultSet, len(c.results))
	copy(out, c.results)
	return out
}
