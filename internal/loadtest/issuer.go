package loadtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Issuer performs single HTTP attempts. All failure modes are absorbed
// into the returned RequestResult; Issue never propagates an error.
// This is the central reliability contract of the tool: one bad request
// must never take down the run.
type Issuer struct {
	client *http.Client
}

// ClientConfig contains transport tuning for the shared HTTP client.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
}

// DefaultClientConfig returns transport defaults sized for load
// generation rather than interactive use.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewIssuer creates an issuer with a pooled transport. The client is
// shared by every concurrent attempt; per-attempt timeouts come from
// the RequestSpec, not the client.
func NewIssuer(cfg ClientConfig) *Issuer {
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	return &Issuer{
		client: &http.Client{Transport: transport},
	}
}

// NewIssuerWithClient creates an issuer around an existing client.
// Used by tests to point at httptest servers with custom transports.
func NewIssuerWithClient(client *http.Client) *Issuer {
	return &Issuer{client: client}
}

// Close releases idle connections held by the shared transport.
func (is *Issuer) Close() {
	is.client.CloseIdleConnections()
}

// Issue performs one attempt described by spec. Latency is wall-clock
// from just before the call to just after the response or failure is
// observed, connection setup included. An attempt that outlives
// spec.Timeout is cancelled and classified as a timeout even if a
// response was racing in.
func (is *Issuer) Issue(ctx context.Context, spec *RequestSpec) RequestResult {
	result := RequestResult{Start: time.Now()}

	attemptCtx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	req, err := is.buildRequest(attemptCtx, spec)
	if err != nil {
		result.Latency = time.Since(result.Start)
		result.Outcome = OutcomeTransportError
		result.Err = err
		return result
	}

	resp, err := is.client.Do(req)
	result.Latency = time.Since(result.Start)

	if err != nil {
		result.Outcome = classifyTransportError(attemptCtx, err)
		result.Err = err
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode

	body, err := io.ReadAll(resp.Body)
	// Body read time counts toward latency: the response is not
	// "observed" until it has fully arrived.
	result.Latency = time.Since(result.Start)
	if err != nil {
		result.Outcome = classifyTransportError(attemptCtx, err)
		result.Err = err
		return result
	}
	result.BytesReceived = int64(len(body))

	if spec.Timeout > 0 && result.Latency > spec.Timeout {
		result.Outcome = OutcomeTimeout
		return result
	}

	if !statusIsSuccess(resp.StatusCode) {
		result.Outcome = OutcomeHTTPError
		return result
	}

	if spec.ExpectJSONPath != "" {
		got := gjson.GetBytes(body, spec.ExpectJSONPath)
		if !got.Exists() || got.String() != spec.ExpectJSONValue {
			result.Outcome = OutcomeHTTPError
			return result
		}
	}

	result.Outcome = OutcomeSuccess
	return result
}

func (is *Issuer) buildRequest(ctx context.Context, spec *RequestSpec) (*http.Request, error) {
	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, err
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// classifyTransportError separates timeouts (deadline hit, or the run
// shutting down and abandoning the attempt) from genuine transport
// failures like connection refused or DNS errors.
func classifyTransportError(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil {
		return OutcomeTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return OutcomeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeTransportError
}
