// Package config defines run configuration, YAML loading, and the
// pre-run validation that gates all network activity.
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can say "500ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	dur, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config describes one load test run. It is assembled from an optional
// YAML file and CLI flags (flags win), then validated once before the
// run starts. After validation it is read-only.
type Config struct {
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method"`
	QPS         float64           `yaml:"qps"`
	MaxRequests int               `yaml:"maxRequests"`
	Timeout     Duration          `yaml:"timeout"`
	RunTimeout  Duration          `yaml:"runTimeout"`
	Headers     map[string]string `yaml:"headers"`
	Body        string            `yaml:"body"`

	// Logging of per-request lines plus the final report block.
	LogEnabled bool   `yaml:"logging"`
	LogFile    string `yaml:"logFile"`

	// Extra percentiles to report beyond p50/p90/p95/p99.
	Percentiles []float64 `yaml:"percentiles"`

	// Thresholds in expression form, e.g. "p95<=500ms",
	// "error_rate<=0.01".
	Thresholds []string `yaml:"thresholds"`

	// ResponseTimeCutoffs to report request shares at or above.
	ResponseTimeCutoffs []Duration `yaml:"responseThresholds"`

	// ExpectJSON requires 2xx bodies to match "path=value" to count
	// as success.
	ExpectJSON string `yaml:"expectJson"`
}

// Default returns the defaults applied before file and flag values.
func Default() *Config {
	return &Config{
		Method:      "GET",
		QPS:         1,
		MaxRequests: 10,
		Timeout:     Duration(5 * time.Second),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"DELETE": true,
}

// ValidationError is a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found in one pass so the
// user sees them all at once.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (e *ValidationErrors) add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// Validate checks the configuration before any request is issued.
// Any error here aborts the run with no network activity.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.URL == "" {
		errs.add("url", "url is required")
	} else if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.add("url", fmt.Sprintf("invalid url: %s", c.URL))
	}

	if c.QPS <= 0 {
		errs.add("qps", "qps must be > 0")
	}
	if c.MaxRequests < 0 {
		errs.add("maxRequests", "maxRequests must be >= 0")
	}
	if c.Timeout <= 0 {
		errs.add("timeout", "timeout must be > 0")
	}
	if c.RunTimeout < 0 {
		errs.add("runTimeout", "runTimeout must be >= 0")
	}

	method := strings.ToUpper(c.Method)
	if !allowedMethods[method] {
		errs.add("method", fmt.Sprintf("unsupported method: %s (allowed: GET, POST, PUT, DELETE)", c.Method))
	}

	for _, p := range c.Percentiles {
		if p <= 0 || p > 100 {
			errs.add("percentiles", fmt.Sprintf("percentile %v out of range (0, 100]", p))
		}
	}

	for _, expr := range c.Thresholds {
		if _, err := ParseThreshold(expr); err != nil {
			errs.add("thresholds", err.Error())
		}
	}

	if c.ExpectJSON != "" && !strings.Contains(c.ExpectJSON, "=") {
		errs.add("expectJson", fmt.Sprintf("expected 'path=value', got %q", c.ExpectJSON))
	}

	if len(errs.Errors) > 0 {
		return errs
	}
	return nil
}

// Threshold is one parsed (metric, limit) pair.
type Threshold struct {
	Metric string

	// Exactly one of the two is meaningful depending on Metric.
	LatencyLimit time.Duration
	RateLimit    float64
}

var latencyMetrics = map[string]bool{
	"mean": true, "p50": true, "p90": true, "p95": true, "p99": true,
}

// ParseThreshold parses "metric<=limit" expressions: latency metrics
// take a duration limit ("p95<=500ms"), error_rate takes a fraction
// ("error_rate<=0.01").
func ParseThreshold(expr string) (Threshold, error) {
	parts := strings.SplitN(expr, "<=", 2)
	if len(parts) != 2 {
		return Threshold{}, fmt.Errorf("invalid threshold %q: expected 'metric<=limit'", expr)
	}
	metric := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])

	switch {
	case latencyMetrics[metric]:
		d, err := time.ParseDuration(value)
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid threshold %q: bad duration %q", expr, value)
		}
		if d <= 0 {
			return Threshold{}, fmt.Errorf("invalid threshold %q: limit must be > 0", expr)
		}
		return Threshold{Metric: metric, LatencyLimit: d}, nil

	case metric == "error_rate":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return Threshold{}, fmt.Errorf("invalid threshold %q: error_rate limit must be a fraction in [0,1]", expr)
		}
		return Threshold{Metric: metric, RateLimit: f}, nil

	default:
		return Threshold{}, fmt.Errorf("invalid threshold %q: unknown metric %q", expr, metric)
	}
}

// ParsedThresholds returns all threshold expressions parsed. Call only
// after Validate.
func (c *Config) ParsedThresholds() []Threshold {
	out := make([]Threshold, 0, len(c.Thresholds))
	for _, expr := range c.Thresholds {
		t, err := ParseThreshold(expr)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ParseHeaders parses "Name: Value" (or "Name=Value") pairs from the
// CLI into a header map.
func ParseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		var name, value string
		if i := strings.Index(pair, ":"); i >= 0 {
			name, value = pair[:i], pair[i+1:]
		} else if i := strings.Index(pair, "="); i >= 0 {
			name, value = pair[:i], pair[i+1:]
		} else {
			return nil, fmt.Errorf("invalid header %q: expected 'Name: Value'", pair)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid header %q: empty name", pair)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// Cutoffs returns the response-time cutoffs as time.Durations.
func (c *Config) Cutoffs() []time.Duration {
	if len(c.ResponseTimeCutoffs) == 0 {
		return nil
	}
	out := make([]time.Duration, len(c.ResponseTimeCutoffs))
	for i, d := range c.ResponseTimeCutoffs {
		out[i] = d.Std()
	}
	return out
}

// SortedPercentiles returns the extra percentiles deduplicated and in
// ascending order for stable reporting.
func (c *Config) SortedPercentiles() []float64 {
	seen := make(map[float64]bool, len(c.Percentiles))
	out := make([]float64, 0, len(c.Percentiles))
	for _, p := range c.Percentiles {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Float64s(out)
	return out
}
