package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/surgehq/surge/internal/config"
	"github.com/surgehq/surge/internal/loadtest"
	"github.com/surgehq/surge/internal/logging"
	"github.com/surgehq/surge/internal/output"
	"github.com/surgehq/surge/internal/stats"
)

var runCmd = newRunCommand()

// newRunCommand builds the run command with its flag set. A fresh
// instance per test keeps repeatable flags from accumulating across
// executions.
func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against a URL",
		Long: `Issue requests at a fixed QPS until the request budget is spent,
then report aggregate latency and error statistics.

Examples:
  surge run --url https://api.example.com/health --qps 10 --max-requests 100
  surge run --url https://api.example.com/users --method POST \
    --header "Content-Type: application/json" --body '{"name":"x"}' \
    --threshold "p95<=500ms" --threshold "error_rate<=0.01"
  surge run --config test.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd)
		},
	}

	cmd.Flags().String("url", "", "URL to test")
	cmd.Flags().String("method", "GET", "HTTP method (GET, POST, PUT, DELETE)")
	cmd.Flags().Float64("qps", 1, "Target requests per second")
	cmd.Flags().Int("max-requests", 10, "Total number of requests to dispatch")
	cmd.Flags().DurationP("timeout", "t", 5*time.Second, "Per-request timeout")
	cmd.Flags().Duration("run-timeout", 0, "Overall run timeout (0 derives one from qps and max-requests)")
	cmd.Flags().StringArrayP("header", "H", nil, "Request header as 'Name: Value' (repeatable)")
	cmd.Flags().String("body", "", "Request body payload")
	cmd.Flags().Bool("log", false, "Write one log line per request plus a summary block")
	cmd.Flags().String("log-file", "", "Log destination ('-' for stdout, default a timestamped file)")
	cmd.Flags().Float64Slice("percentile", nil, "Extra latency percentiles to report (e.g. 99.9)")
	cmd.Flags().StringArray("threshold", nil, "Threshold expression like 'p95<=500ms' or 'error_rate<=0.01' (repeatable)")
	cmd.Flags().DurationSlice("response-thres", nil, "Response time cutoffs to report shares for (e.g. 250ms,500ms)")
	cmd.Flags().String("expect-json", "", "Require 2xx bodies to match 'gjson.path=value' to count as success")
	cmd.Flags().StringP("config", "c", "", "YAML config file (flags override file values)")

	return cmd
}

func runLoadTest(cmd *cobra.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	spec, err := buildSpec(cfg)
	if err != nil {
		return err
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()

	issuer := loadtest.NewIssuer(loadtest.DefaultClientConfig())
	defer issuer.Close()

	collector := loadtest.NewCollector(cfg.MaxRequests)
	scheduler := loadtest.NewScheduler(spec, issuer, collector, loadtest.SchedulerConfig{
		QPS:         cfg.QPS,
		MaxRequests: cfg.MaxRequests,
		RunTimeout:  cfg.RunTimeout.Std(),
	})

	console := output.NewConsole(cmd.OutOrStdout())

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	start := time.Now()
	done := make(chan int64, 1)
	go func() {
		done <- scheduler.Run(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

runLoop:
	for {
		select {
		case <-done:
			break runLoop
		case <-ticker.C:
			console.Progress(collector.Live(), scheduler.Launched(), cfg.MaxRequests)
		}
	}
	console.EndProgress()
	elapsed := time.Since(start)

	results := collector.Finalize()
	for _, r := range results {
		sink.RequestCompleted(r)
	}

	report := stats.SummarizeWithPercentiles(results, buildThresholds(cfg), cfg.SortedPercentiles())
	sink.Summary(report)
	console.Report(report, elapsed)

	if !report.Passed() {
		exitCode = 1
	}
	return nil
}

// buildConfig merges defaults, the optional YAML file, and CLI flags
// (flags win over the file).
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flags.Changed("url") {
		cfg.URL, _ = flags.GetString("url")
	}
	if flags.Changed("method") {
		cfg.Method, _ = flags.GetString("method")
	}
	if flags.Changed("qps") {
		cfg.QPS, _ = flags.GetFloat64("qps")
	}
	if flags.Changed("max-requests") {
		cfg.MaxRequests, _ = flags.GetInt("max-requests")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Timeout = config.Duration(d)
	}
	if flags.Changed("run-timeout") {
		d, _ := flags.GetDuration("run-timeout")
		cfg.RunTimeout = config.Duration(d)
	}
	if flags.Changed("body") {
		cfg.Body, _ = flags.GetString("body")
	}
	if flags.Changed("log") {
		cfg.LogEnabled, _ = flags.GetBool("log")
	}
	if flags.Changed("log-file") {
		cfg.LogFile, _ = flags.GetString("log-file")
		cfg.LogEnabled = true
	}
	if flags.Changed("percentile") {
		cfg.Percentiles, _ = flags.GetFloat64Slice("percentile")
	}
	if flags.Changed("threshold") {
		cfg.Thresholds, _ = flags.GetStringArray("threshold")
	}
	if flags.Changed("response-thres") {
		ds, _ := flags.GetDurationSlice("response-thres")
		cfg.ResponseTimeCutoffs = cfg.ResponseTimeCutoffs[:0]
		for _, d := range ds {
			cfg.ResponseTimeCutoffs = append(cfg.ResponseTimeCutoffs, config.Duration(d))
		}
	}
	if flags.Changed("expect-json") {
		cfg.ExpectJSON, _ = flags.GetString("expect-json")
	}

	if flags.Changed("header") {
		pairs, _ := flags.GetStringArray("header")
		headers, err := config.ParseHeaders(pairs)
		if err != nil {
			return nil, err
		}
		cfg.Headers = headers
	}

	return cfg, nil
}

func buildSpec(cfg *config.Config) (*loadtest.RequestSpec, error) {
	spec := &loadtest.RequestSpec{
		Method:  strings.ToUpper(cfg.Method),
		URL:     cfg.URL,
		Headers: cfg.Headers,
		Timeout: cfg.Timeout.Std(),
	}
	if cfg.Body != "" {
		spec.Body = []byte(cfg.Body)
	}
	if cfg.ExpectJSON != "" {
		path, value, ok := strings.Cut(cfg.ExpectJSON, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --expect-json %q: expected 'path=value'", cfg.ExpectJSON)
		}
		spec.ExpectJSONPath = path
		spec.ExpectJSONValue = value
	}
	return spec, nil
}

func buildSink(cfg *config.Config) (logging.Sink, error) {
	if !cfg.LogEnabled {
		return logging.Nop{}, nil
	}
	if cfg.LogFile == "-" {
		return logging.NewWriterSink(os.Stdout), nil
	}
	return logging.NewFileSink(cfg.LogFile)
}

func buildThresholds(cfg *config.Config) stats.Thresholds {
	th := stats.Thresholds{
		ResponseTimeCutoffs: cfg.Cutoffs(),
	}
	for _, t := range cfg.ParsedThresholds() {
		if t.Metric == "error_rate" {
			limit := t.RateLimit
			th.MaxErrorRate = &limit
			continue
		}
		if th.Latency == nil {
			th.Latency = make(map[string]time.Duration)
		}
		th.Latency[t.Metric] = t.LatencyLimit
	}
	return th
}
