package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorKind categorizes enrichment failures for retry/recovery decisions,
// generalized from the strategy engine's ErrorType for a single external
// collaborator: the remote LLM endpoint.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrNetwork
	ErrRateLimit
	ErrAuthentication
	ErrQuotaExceeded
	ErrInvalidRequest
	ErrServer
	ErrTimeout
	ErrParsing
)

func (k ErrorKind) String() string {
	switch k {
	case ErrNetwork:
		return "network"
	case ErrRateLimit:
		return "rate_limit"
	case ErrAuthentication:
		return "authentication"
	case ErrQuotaExceeded:
		return "quota_exceeded"
	case ErrInvalidRequest:
		return "invalid_request"
	case ErrServer:
		return "server"
	case ErrTimeout:
		return "timeout"
	case ErrParsing:
		return "parsing"
	default:
		return "unknown"
	}
}

// EnrichError wraps a classified enrichment failure.
type EnrichError struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	Retryable  bool
	RetryAfter time.Duration
	Hard       bool // auth/config: disable enrichment for the session
}

func (e *EnrichError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *EnrichError) Unwrap() error { return e.Cause }

// ErrorClassifier turns an opaque error into an EnrichError.
type ErrorClassifier struct{}

// Classify inspects err and returns its EnrichError classification.
func (ErrorClassifier) Classify(err error) *EnrichError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &EnrichError{Kind: ErrTimeout, Message: "request timed out", Cause: err, Retryable: true, RetryAfter: 2 * time.Second}
	}
	if errors.Is(err, context.Canceled) {
		return &EnrichError{Kind: ErrTimeout, Message: "request cancelled", Cause: err, Retryable: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &EnrichError{Kind: ErrNetwork, Message: "network error", Cause: err, Retryable: true, RetryAfter: 2 * time.Second}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return &EnrichError{Kind: ErrRateLimit, Message: "rate limited", Cause: err, Retryable: true, RetryAfter: 30 * time.Second}
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "api key"):
		return &EnrichError{Kind: ErrAuthentication, Message: "authentication failed", Cause: err, Retryable: false, Hard: true}
	case strings.Contains(msg, "quota") || strings.Contains(msg, "403"):
		return &EnrichError{Kind: ErrQuotaExceeded, Message: "quota exceeded", Cause: err, Retryable: false, Hard: true}
	case strings.Contains(msg, "invalid") || strings.Contains(msg, "400"):
		return &EnrichError{Kind: ErrInvalidRequest, Message: "invalid request", Cause: err, Retryable: false, Hard: true}
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return &EnrichError{Kind: ErrServer, Message: "server error", Cause: err, Retryable: true, RetryAfter: 5 * time.Second}
	case strings.Contains(msg, "json") || strings.Contains(msg, "unmarshal"):
		return &EnrichError{Kind: ErrParsing, Message: "failed to parse response", Cause: err, Retryable: false}
	default:
		return &EnrichError{Kind: ErrUnknown, Message: "unclassified error", Cause: err, Retryable: false}
	}
}

// ErrorReporter keeps a bounded history of classified errors for
// diagnostics, without ever surfacing them to the end user.
type ErrorReporter struct {
	counts  map[ErrorKind]int
	history []*EnrichError
	maxHist int
}

// NewErrorReporter builds a reporter retaining at most maxHistory errors.
func NewErrorReporter(maxHistory int) *ErrorReporter {
	return &ErrorReporter{counts: make(map[ErrorKind]int), maxHist: maxHistory}
}

// Report records one classified error.
func (r *ErrorReporter) Report(e *EnrichError) {
	if e == nil {
		return
	}
	r.counts[e.Kind]++
	r.history = append(r.history, e)
	if len(r.history) > r.maxHist {
		r.history = r.history[1:]
	}
}

// Counts returns a copy of the per-kind error counters.
func (r *ErrorReporter) Counts() map[ErrorKind]int {
	out := make(map[ErrorKind]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}
