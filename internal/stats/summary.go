// Package stats computes the summary report for a finalized run.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/surgehq/surge/internal/loadtest"
)

// LatencyStats contains latency aggregates over all results, success
// and error alike — a slow error is still a latency data point.
// Count == 0 means every other field is undefined and must be rendered
// as such, never as zero.
type LatencyStats struct {
	Count     int64
	Mean      time.Duration
	StdDev    time.Duration
	Min       time.Duration
	Max       time.Duration
	Amplitude time.Duration
	P50       time.Duration
	P90       time.Duration
	P95       time.Duration
	P99       time.Duration
}

// Defined reports whether any latency data exists.
func (l LatencyStats) Defined() bool { return l.Count > 0 }

// Thresholds are the configured pass/fail limits checked against the
// computed report. Zero-valued fields are unchecked.
type Thresholds struct {
	// Latency maps a metric name (mean, p50, p90, p95, p99) to its
	// upper limit.
	Latency map[string]time.Duration

	// MaxErrorRate is an upper limit on the error rate as a fraction
	// in [0,1]. Nil disables the check.
	MaxErrorRate *float64

	// ResponseTimeCutoffs lists latency cutoffs to report the share of
	// requests at or above. Reporting only — never a violation.
	ResponseTimeCutoffs []time.Duration
}

// Violation records one threshold breach. Latency values are in
// milliseconds, error rate as a fraction. Violations are data in the
// report, never a fault.
type Violation struct {
	Metric   string
	Computed float64
	Limit    float64
}

// ResponseTimeShare reports what percentage of requests took at least
// Cutoff to complete.
type ResponseTimeShare struct {
	Cutoff  time.Duration
	Percent float64
}

// SummaryReport is the terminal artifact of a run.
type SummaryReport struct {
	Total      int64
	Successes  int64
	Errors     int64
	ErrorRate  float64 // fraction in [0,1]; exactly 0 for an empty run
	Latency    LatencyStats
	Extra      map[float64]time.Duration // extra configured percentiles
	Shares     []ResponseTimeShare
	Violations []Violation
}

// Passed reports whether the run satisfied every threshold.
func (r *SummaryReport) Passed() bool { return len(r.Violations) == 0 }

// Summarize computes the report from a finalized result set. Pure:
// deterministic, no side effects, no dependence on result order.
func Summarize(results loadtest.ResultSet, th Thresholds) *SummaryReport {
	return SummarizeWithPercentiles(results, th, nil)
}

// SummarizeWithPercentiles is Summarize with extra percentiles to
// compute beyond the standard p50/p90/p95/p99.
func SummarizeWithPercentiles(results loadtest.ResultSet, th Thresholds, extra []float64) *SummaryReport {
	report := &SummaryReport{Total: int64(len(results))}

	for _, r := range results {
		if r.OK() {
			report.Successes++
		} else {
			report.Errors++
		}
	}
	if report.Total > 0 {
		report.ErrorRate = float64(report.Errors) / float64(report.Total)
	}

	latencies := results.Latencies()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	if len(latencies) > 0 {
		report.Latency = computeLatencyStats(latencies)
		if len(extra) > 0 {
			report.Extra = make(map[float64]time.Duration, len(extra))
			for _, p := range extra {
				report.Extra[p] = percentile(latencies, p)
			}
		}
		for _, cutoff := range th.ResponseTimeCutoffs {
			report.Shares = append(report.Shares, ResponseTimeShare{
				Cutoff:  cutoff,
				Percent: shareAtOrAbove(latencies, cutoff),
			})
		}
	}

	report.Violations = checkThresholds(report, th)
	return report
}

func computeLatencyStats(sorted []time.Duration) LatencyStats {
	n := len(sorted)

	var sum float64
	for _, d := range sorted {
		sum += float64(d)
	}
	mean := sum / float64(n)

	// Population standard deviation, for determinism.
	var sq float64
	for _, d := range sorted {
		diff := float64(d) - mean
		sq += diff * diff
	}
	stddev := math.Sqrt(sq / float64(n))

	return LatencyStats{
		Count:     int64(n),
		Mean:      time.Duration(mean),
		StdDev:    time.Duration(stddev),
		Min:       sorted[0],
		Max:       sorted[n-1],
		Amplitude: sorted[n-1] - sorted[0],
		P50:       percentile(sorted, 50),
		P90:       percentile(sorted, 90),
		P95:       percentile(sorted, 95),
		P99:       percentile(sorted, 99),
	}
}

// percentile selects by nearest rank from an ascending-sorted slice:
// index = ceil(p/100 * n) - 1, clamped to [0, n-1].
func percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func shareAtOrAbove(sorted []time.Duration, cutoff time.Duration) float64 {
	// First index >= cutoff; everything from there counts.
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= cutoff })
	return float64(len(sorted)-i) / float64(len(sorted)) * 100
}

func checkThresholds(report *SummaryReport, th Thresholds) []Violation {
	var out []Violation

	if report.Latency.Defined() {
		// Deterministic violation order.
		for _, metric := range []string{"mean", "p50", "p90", "p95", "p99"} {
			limit, ok := th.Latency[metric]
			if !ok {
				continue
			}
			var computed time.Duration
			switch metric {
			case "mean":
				computed = report.Latency.Mean
			case "p50":
				computed = report.Latency.P50
			case "p90":
				computed = report.Latency.P90
			case "p95":
				computed = report.Latency.P95
			case "p99":
				computed = report.Latency.P99
			}
			if computed > limit {
				out = append(out, Violation{
					Metric:   metric,
					Computed: millis(computed),
					Limit:    millis(limit),
				})
			}
		}
	}

	if th.MaxErrorRate != nil && report.ErrorRate > *th.MaxErrorRate {
		out = append(out, Violation{
			Metric:   "error_rate",
			Computed: report.ErrorRate,
			Limit:    *th.MaxErrorRate,
		})
	}

	return out
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
