package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/surgehq/surge/internal/loadtest"
)

func successResults(latencies ...time.Duration) loadtest.ResultSet {
	out := make(loadtest.ResultSet, len(latencies))
	for i, d := range latencies {
		out[i] = loadtest.RequestResult{Latency: d, Outcome: loadtest.OutcomeSuccess, StatusCode: 200}
	}
	return out
}

func TestSummarize_AllSuccess(t *testing.T) {
	report := Summarize(successResults(10*time.Millisecond, 20*time.Millisecond), Thresholds{})

	if report.Total != 2 || report.Successes != 2 || report.Errors != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/2/0", report.Total, report.Successes, report.Errors)
	}
	if report.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want exactly 0", report.ErrorRate)
	}
}

func TestSummarize_AllTimeouts(t *testing.T) {
	timeout := 100 * time.Millisecond
	results := make(loadtest.ResultSet, 5)
	for i := range results {
		results[i] = loadtest.RequestResult{
			Latency: timeout + time.Duration(i)*time.Millisecond,
			Outcome: loadtest.OutcomeTimeout,
		}
	}

	report := Summarize(results, Thresholds{})

	if report.ErrorRate != 1 {
		t.Errorf("ErrorRate = %v, want exactly 1", report.ErrorRate)
	}
	if report.Latency.Min < timeout {
		t.Errorf("Min latency = %v, want >= configured timeout %v", report.Latency.Min, timeout)
	}
}

func TestSummarize_LatencyCountsErrorsToo(t *testing.T) {
	// A slow error is still a latency data point.
	results := loadtest.ResultSet{
		{Latency: 10 * time.Millisecond, Outcome: loadtest.OutcomeSuccess, StatusCode: 200},
		{Latency: 1000 * time.Millisecond, Outcome: loadtest.OutcomeHTTPError, StatusCode: 500},
	}

	report := Summarize(results, Thresholds{})
	if report.Latency.Max != 1000*time.Millisecond {
		t.Errorf("Max = %v, want the error's 1s latency included", report.Latency.Max)
	}
	if report.Latency.Count != 2 {
		t.Errorf("Count = %d, want 2", report.Latency.Count)
	}
}

func TestSummarize_EmptyRun(t *testing.T) {
	report := Summarize(nil, Thresholds{
		Latency:      map[string]time.Duration{"p95": 100 * time.Millisecond},
		MaxErrorRate: floatPtr(0.01),
	})

	if report.Total != 0 {
		t.Errorf("Total = %d, want 0", report.Total)
	}
	if report.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want exactly 0 for an empty run", report.ErrorRate)
	}
	if report.Latency.Defined() {
		t.Error("latency stats should be undefined, not zero, for an empty run")
	}
	if len(report.Violations) != 0 {
		t.Errorf("Violations = %v, want none for an empty run", report.Violations)
	}
	if !report.Passed() {
		t.Error("empty run should pass")
	}
}

func TestPercentile_NearestRank(t *testing.T) {
	// sorted 1..10ms: index = ceil(p/100*10)-1
	var sorted []time.Duration
	for i := 1; i <= 10; i++ {
		sorted = append(sorted, time.Duration(i)*time.Millisecond)
	}

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{50, 5 * time.Millisecond},
		{90, 9 * time.Millisecond},
		{95, 10 * time.Millisecond},
		{99, 10 * time.Millisecond},
		{100, 10 * time.Millisecond},
		{1, 1 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := percentile(sorted, tt.p); got != tt.want {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}

func TestPercentile_SingleSample(t *testing.T) {
	sorted := []time.Duration{42 * time.Millisecond}
	for _, p := range []float64{1, 50, 99} {
		if got := percentile(sorted, p); got != 42*time.Millisecond {
			t.Errorf("percentile(%v) = %v, want 42ms", p, got)
		}
	}
}

func TestSummarize_OrderIndependent(t *testing.T) {
	latencies := make([]time.Duration, 100)
	for i := range latencies {
		latencies[i] = time.Duration(i+1) * time.Millisecond
	}

	baseline := Summarize(successResults(latencies...), Thresholds{})

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(latencies), func(i, j int) {
			latencies[i], latencies[j] = latencies[j], latencies[i]
		})
		report := Summarize(successResults(latencies...), Thresholds{})

		if report.Latency.P50 != baseline.Latency.P50 ||
			report.Latency.P90 != baseline.Latency.P90 ||
			report.Latency.P95 != baseline.Latency.P95 ||
			report.Latency.P99 != baseline.Latency.P99 {
			t.Fatalf("trial %d: percentiles differ after shuffle: %+v vs %+v",
				trial, report.Latency, baseline.Latency)
		}
	}
}

func TestSummarize_PopulationStdDev(t *testing.T) {
	// 10ms and 30ms: mean 20ms, population stddev exactly 10ms.
	report := Summarize(successResults(10*time.Millisecond, 30*time.Millisecond), Thresholds{})

	if report.Latency.Mean != 20*time.Millisecond {
		t.Errorf("Mean = %v, want 20ms", report.Latency.Mean)
	}
	got := float64(report.Latency.StdDev)
	want := float64(10 * time.Millisecond)
	if math.Abs(got-want) > float64(time.Microsecond) {
		t.Errorf("StdDev = %v, want 10ms (population, not sample)", report.Latency.StdDev)
	}
}

func TestSummarize_MinMaxAmplitude(t *testing.T) {
	report := Summarize(successResults(5*time.Millisecond, 50*time.Millisecond, 20*time.Millisecond), Thresholds{})

	l := report.Latency
	if l.Min != 5*time.Millisecond || l.Max != 50*time.Millisecond || l.Amplitude != 45*time.Millisecond {
		t.Errorf("min/max/amplitude = %v/%v/%v, want 5ms/50ms/45ms", l.Min, l.Max, l.Amplitude)
	}
}

func TestSummarize_ThresholdViolation(t *testing.T) {
	// All latencies 150ms, so p95 = 150ms against a 100ms limit.
	results := successResults(
		150*time.Millisecond, 150*time.Millisecond, 150*time.Millisecond,
		150*time.Millisecond, 150*time.Millisecond,
	)

	report := Summarize(results, Thresholds{
		Latency: map[string]time.Duration{"p95": 100 * time.Millisecond},
	})

	if len(report.Violations) != 1 {
		t.Fatalf("Violations = %v, want exactly one", report.Violations)
	}
	v := report.Violations[0]
	if v.Metric != "p95" || v.Computed != 150 || v.Limit != 100 {
		t.Errorf("violation = %+v, want {p95 150 100}", v)
	}
	if report.Passed() {
		t.Error("report with a violation must not pass")
	}
}

func TestSummarize_ErrorRateThreshold(t *testing.T) {
	results := loadtest.ResultSet{
		{Latency: time.Millisecond, Outcome: loadtest.OutcomeSuccess, StatusCode: 200},
		{Latency: time.Millisecond, Outcome: loadtest.OutcomeTransportError},
	}

	report := Summarize(results, Thresholds{MaxErrorRate: floatPtr(0.01)})

	if len(report.Violations) != 1 {
		t.Fatalf("Violations = %v, want one", report.Violations)
	}
	v := report.Violations[0]
	if v.Metric != "error_rate" || v.Computed != 0.5 || v.Limit != 0.01 {
		t.Errorf("violation = %+v, want {error_rate 0.5 0.01}", v)
	}
}

func TestSummarize_ThresholdAtLimitPasses(t *testing.T) {
	report := Summarize(successResults(100*time.Millisecond), Thresholds{
		Latency: map[string]time.Duration{"p95": 100 * time.Millisecond},
	})
	if !report.Passed() {
		t.Error("computed value equal to the limit must not violate")
	}
}

func TestSummarize_ResponseTimeShares(t *testing.T) {
	results := successResults(
		100*time.Millisecond, 200*time.Millisecond, 300*time.Millisecond, 400*time.Millisecond,
	)

	report := Summarize(results, Thresholds{
		ResponseTimeCutoffs: []time.Duration{250 * time.Millisecond, 500 * time.Millisecond},
	})

	if len(report.Shares) != 2 {
		t.Fatalf("Shares = %v, want 2 entries", report.Shares)
	}
	if report.Shares[0].Percent != 50 {
		t.Errorf("share >= 250ms = %v%%, want 50%%", report.Shares[0].Percent)
	}
	if report.Shares[1].Percent != 0 {
		t.Errorf("share >= 500ms = %v%%, want 0%%", report.Shares[1].Percent)
	}
}

func TestSummarize_ExtraPercentiles(t *testing.T) {
	var latencies []time.Duration
	for i := 1; i <= 100; i++ {
		latencies = append(latencies, time.Duration(i)*time.Millisecond)
	}

	report := SummarizeWithPercentiles(successResults(latencies...), Thresholds{}, []float64{99.9})

	if got := report.Extra[99.9]; got != 100*time.Millisecond {
		t.Errorf("p99.9 = %v, want 100ms", got)
	}
}

func floatPtr(f float64) *float64 { return &f }
