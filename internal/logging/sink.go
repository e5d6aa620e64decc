// Package logging provides the per-request log sink. The sink is
// injected into the run as a collaborator; write failures are silently
// dropped so a full disk can never abort a load test.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/surgehq/surge/internal/loadtest"
	"github.com/surgehq/surge/internal/stats"
)

// Sink receives one line per completed request and a final summary
// block. Implementations must be safe for concurrent RequestCompleted
// calls.
type Sink interface {
	RequestCompleted(result loadtest.RequestResult)
	Summary(report *stats.SummaryReport)
	Close() error
}

// Nop is the sink used when logging is disabled.
type Nop struct{}

func (Nop) RequestCompleted(loadtest.RequestResult) {}
func (Nop) Summary(*stats.SummaryReport)            {}
func (Nop) Close() error                            { return nil }

// writerSink appends human-readable lines to an io.Writer.
type writerSink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriterSink wraps any writer (stdout, a buffer in tests).
func NewWriterSink(w io.Writer) Sink {
	return &writerSink{w: w}
}

// NewFileSink opens path for appending. An empty path picks a
// timestamped file name in the working directory.
func NewFileSink(path string) (Sink, error) {
	if path == "" {
		path = fmt.Sprintf("load_test_%d.log", time.Now().Unix())
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return &writerSink{w: f, closer: f}, nil
}

func (s *writerSink) RequestCompleted(r loadtest.RequestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("timestamp=%s latency=%s outcome=%s",
		r.Start.Format(time.RFC3339Nano), r.Latency, r.Outcome)
	if r.StatusCode != 0 {
		line += fmt.Sprintf(" status=%d", r.StatusCode)
	}
	if r.Err != nil {
		line += fmt.Sprintf(" error=%q", r.Err.Error())
	}
	// Write errors are non-fatal to the run.
	fmt.Fprintln(s.w, line)
}

func (s *writerSink) Summary(report *stats.SummaryReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(s.w, "---------------- FINAL REPORT ----------------")
	fmt.Fprintf(s.w, "total=%d success=%d errors=%d error_rate=%.2f%%\n",
		report.Total, report.Successes, report.Errors, report.ErrorRate*100)
	if report.Latency.Defined() {
		l := report.Latency
		fmt.Fprintf(s.w, "mean=%s stddev=%s min=%s max=%s amplitude=%s\n",
			l.Mean, l.StdDev, l.Min, l.Max, l.Amplitude)
		fmt.Fprintf(s.w, "p50=%s p90=%s p95=%s p99=%s\n", l.P50, l.P90, l.P95, l.P99)
	} else {
		fmt.Fprintln(s.w, "latency=undefined (no requests completed)")
	}
	for _, v := range report.Violations {
		fmt.Fprintf(s.w, "violation metric=%s computed=%v limit=%v\n", v.Metric, v.Computed, v.Limit)
	}
}

func (s *writerSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
