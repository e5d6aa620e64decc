// Package output renders the live progress line and the final report.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/surgehq/surge/internal/loadtest"
	"github.com/surgehq/surge/internal/stats"
)

// Console writes human-readable run output. The live progress line is
// only drawn on a TTY; colors follow the same rule.
type Console struct {
	w     io.Writer
	isTTY bool

	ok   *color.Color
	bad  *color.Color
	head *color.Color

	progressDrawn bool
}

// Option configures a Console.
type Option func(*Console)

// ForceTTY enables the live progress line regardless of the writer.
// Used by tests.
func ForceTTY() Option {
	return func(c *Console) { c.isTTY = true }
}

// NewConsole creates a console writing to w (defaults to stdout).
func NewConsole(w io.Writer, opts ...Option) *Console {
	if w == nil {
		w = os.Stdout
	}

	c := &Console{
		w:    w,
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed, color.Bold),
		head: color.New(color.Bold),
	}
	if f, isFile := w.(*os.File); isFile {
		c.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	for _, opt := range opts {
		opt(c)
	}
	if !c.isTTY {
		c.ok.DisableColor()
		c.bad.DisableColor()
		c.head.DisableColor()
	}
	return c
}

// IsTTY reports whether live progress output is enabled.
func (c *Console) IsTTY() bool { return c.isTTY }

// Progress redraws the in-run progress line. No-op off a TTY.
func (c *Console) Progress(live loadtest.LiveStats, launched int64, max int) {
	if !c.isTTY {
		return
	}
	pct := 0.0
	if max > 0 {
		pct = float64(launched) / float64(max) * 100
	}
	fmt.Fprintf(c.w, "\r\033[K  %3.0f%% | dispatched %d/%d | done %d | errors %d | p95 %s",
		pct, launched, max, live.Completed, live.Errors, formatMillis(live.P95))
	c.progressDrawn = true
}

// EndProgress terminates the progress line before the report prints.
func (c *Console) EndProgress() {
	if c.isTTY && c.progressDrawn {
		fmt.Fprintln(c.w)
		c.progressDrawn = false
	}
}

// Report renders the final summary block.
func (c *Console) Report(report *stats.SummaryReport, elapsed time.Duration) {
	rule := strings.Repeat("=", 56)

	fmt.Fprintln(c.w, rule)
	c.head.Fprintln(c.w, " Load Test Summary")
	fmt.Fprintln(c.w, rule)

	fmt.Fprintf(c.w, "  Duration:       %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(c.w, "  Total Requests: %d\n", report.Total)
	fmt.Fprintf(c.w, "  Successful:     %d\n", report.Successes)
	fmt.Fprintf(c.w, "  Errors:         %d\n", report.Errors)
	fmt.Fprintf(c.w, "  Error Rate:     %.2f%%\n", report.ErrorRate*100)
	fmt.Fprintln(c.w)

	fmt.Fprintln(c.w, "  Latency")
	if report.Latency.Defined() {
		l := report.Latency
		fmt.Fprintf(c.w, "    Mean:      %s\n", formatMillis(l.Mean))
		fmt.Fprintf(c.w, "    StdDev:    %s\n", formatMillis(l.StdDev))
		fmt.Fprintf(c.w, "    Min:       %s\n", formatMillis(l.Min))
		fmt.Fprintf(c.w, "    Max:       %s\n", formatMillis(l.Max))
		fmt.Fprintf(c.w, "    Amplitude: %s\n", formatMillis(l.Amplitude))
		fmt.Fprintf(c.w, "    P50:       %s\n", formatMillis(l.P50))
		fmt.Fprintf(c.w, "    P90:       %s\n", formatMillis(l.P90))
		fmt.Fprintf(c.w, "    P95:       %s\n", formatMillis(l.P95))
		fmt.Fprintf(c.w, "    P99:       %s\n", formatMillis(l.P99))

		if len(report.Extra) > 0 {
			ps := make([]float64, 0, len(report.Extra))
			for p := range report.Extra {
				ps = append(ps, p)
			}
			sort.Float64s(ps)
			for _, p := range ps {
				label := fmt.Sprintf("%g:", p)
				fmt.Fprintf(c.w, "    P%-9s %s\n", label, formatMillis(report.Extra[p]))
			}
		}
	} else {
		fmt.Fprintln(c.w, "    undefined (no requests completed)")
	}

	if len(report.Shares) > 0 {
		fmt.Fprintln(c.w)
		fmt.Fprintln(c.w, "  Response Time Thresholds (share at or above)")
		for _, s := range report.Shares {
			fmt.Fprintf(c.w, "    >= %-8s %.1f%%\n", s.Cutoff, s.Percent)
		}
	}

	fmt.Fprintln(c.w)
	if report.Passed() {
		c.ok.Fprintln(c.w, "  Thresholds: all passed")
	} else {
		c.bad.Fprintf(c.w, "  Thresholds: %d violation(s)\n", len(report.Violations))
		for _, v := range report.Violations {
			if v.Metric == "error_rate" {
				c.bad.Fprintf(c.w, "    ✗ %s: computed %.4f, limit %.4f\n", v.Metric, v.Computed, v.Limit)
			} else {
				c.bad.Fprintf(c.w, "    ✗ %s: computed %.2fms, limit %.2fms\n", v.Metric, v.Computed, v.Limit)
			}
		}
	}
	fmt.Fprintln(c.w, rule)
}

// formatMillis renders a duration in milliseconds with two decimals.
func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
