// Package loadtest implements the rate-controlled request dispatcher:
// the request issuer, the pacing scheduler, and the result collector.
package loadtest

import (
	"net/http"
	"time"
)

// Outcome classifies a completed request attempt.
type Outcome int

const (
	// OutcomeSuccess is a 2xx response that passed any configured body check.
	OutcomeSuccess Outcome = iota
	// OutcomeHTTPError is a response with a non-2xx status, or a 2xx
	// response that failed the configured body expectation.
	OutcomeHTTPError
	// OutcomeTransportError covers connection refused, DNS failure,
	// TLS failure and the like.
	OutcomeTransportError
	// OutcomeTimeout means the attempt exceeded its timeout and was
	// abandoned, whether or not a response eventually arrived.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeHTTPError:
		return "http_error"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// RequestSpec describes one HTTP call. It is built once from
// configuration and shared read-only across all concurrent issuers.
type RequestSpec struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// ExpectJSON, when both fields are set, requires the response body
	// to contain the given gjson path with the given value for the
	// attempt to count as a success.
	ExpectJSONPath  string
	ExpectJSONValue string
}

// Clone returns a deep copy. Useful in tests; the run path never
// mutates a spec after construction.
func (s *RequestSpec) Clone() *RequestSpec {
	c := *s
	if s.Headers != nil {
		c.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			c.Headers[k] = v
		}
	}
	if s.Body != nil {
		c.Body = append([]byte(nil), s.Body...)
	}
	return &c
}

// RequestResult is the outcome of a single attempt. It is created by
// the issuer and immutable thereafter; the collector owns it from the
// moment it is recorded.
type RequestResult struct {
	Start   time.Time
	Latency time.Duration
	Outcome Outcome

	// StatusCode is 0 unless a response was received.
	StatusCode    int
	BytesReceived int64

	// Err carries the cause for transport_error and timeout outcomes.
	Err error
}

// OK reports whether the attempt counts as a success.
func (r RequestResult) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// ResultSet is the finalized, read-only collection of all results for
// a run. Order carries no meaning: completion order is whatever the
// concurrent issuers produced.
type ResultSet []RequestResult

// Latencies returns the latency of every result, success or not.
func (rs ResultSet) Latencies() []time.Duration {
	out := make([]time.Duration, len(rs))
	for i, r := range rs {
		out[i] = r.Latency
	}
	return out
}

func statusIsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
