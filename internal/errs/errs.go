// Package errs implements the gateway's tagged error taxonomy: every
// failure on the hot path is classified once, at origin, into one of a
// fixed set of variants carrying retryability and provider context.
package errs

import (
	"fmt"
	"net/http"
	"time"
)

// Kind identifies one of the fixed error variants.
type Kind string

const (
	KindNetwork        Kind = "network_error"
	KindRateLimit      Kind = "rate_limit_error"
	KindUpstream       Kind = "upstream_error"
	KindCircuitOpen    Kind = "circuit_open_error"
	KindAbort          Kind = "abort_error"
	KindConfiguration  Kind = "configuration_error"
	KindSpendingCap    Kind = "spending_cap_error"
	KindInvalidRequest Kind = "invalid_request_error"
)

// defaultRetryable reports whether a Kind is retryable absent a status
// code or explicit override.
func defaultRetryable(k Kind) bool {
	switch k {
	case KindNetwork, KindRateLimit:
		return true
	case KindUpstream:
		return false
	default:
		return false
	}
}

// Error is the single error currency used across C1/C7/C8/C9; it never
// gets reclassified once constructed.
type Error struct {
	Kind       Kind           `json:"type"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Model      string         `json:"model,omitempty"`
	Source     string         `json:"source,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	RetryAfter *time.Duration `json:"retry_after_ms,omitempty"`
	ResetAt    *time.Time     `json:"reset_at,omitempty"`
	CapType    string         `json:"cap_type,omitempty"`
	Used       float64        `json:"used,omitempty"`
	Cap        float64        `json:"cap,omitempty"`

	retryable      bool
	retryableIsSet bool
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: %s (model=%s)", e.Kind, e.Message, e.Model)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether this instance should be retried, honoring
// any explicit override and otherwise falling back to status-code /
// kind-based defaults.
func (e *Error) Retryable() bool {
	if e.retryableIsSet {
		return e.retryable
	}
	switch e.Kind {
	case KindUpstream:
		return e.StatusCode >= 500
	default:
		return defaultRetryable(e.Kind)
	}
}

// WithRetryable overrides the retryability decision for this instance.
func (e *Error) WithRetryable(v bool) *Error {
	e.retryable = v
	e.retryableIsSet = true
	return e
}

// HTTPStatus maps the variant to the HTTP status the public API returns,
// per the taxonomy's propagation rules.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindSpendingCap:
		return http.StatusPaymentRequired
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusServiceUnavailable
	case KindCircuitOpen:
		return http.StatusServiceUnavailable
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindNetwork:
		return http.StatusBadGateway
	case KindAbort:
		return 0 // no response body; client is gone.
	default:
		return http.StatusInternalServerError
	}
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now()}
}

// Network wraps a transport-level failure (DNS, TCP/TLS, non-local stream
// abort, timeout).
func Network(message string) *Error {
	return newError(KindNetwork, message)
}

// RateLimit wraps an upstream HTTP 429 or explicit rate-limit signal.
func RateLimit(model, message string, retryAfter *time.Duration) *Error {
	e := newError(KindRateLimit, message)
	e.Model = model
	e.StatusCode = http.StatusTooManyRequests
	e.RetryAfter = retryAfter
	return e
}

// Upstream wraps a non-2xx response carrying a parsed error message.
func Upstream(model string, statusCode int, message string) *Error {
	e := newError(KindUpstream, message)
	e.Model = model
	e.StatusCode = statusCode
	return e
}

// CircuitOpen wraps a breaker rejection.
func CircuitOpen(model string, resetAt time.Time) *Error {
	e := newError(KindCircuitOpen, fmt.Sprintf("circuit open for model %s", model))
	e.Model = model
	e.ResetAt = &resetAt
	return e
}

// Abort wraps a client-initiated cancellation.
func Abort(message string) *Error {
	return newError(KindAbort, message)
}

// Configuration wraps a missing/invalid credential for a selected
// source — the one ConfigurationError case that is actually the
// server's problem, hence the 503.
func Configuration(message string) *Error {
	return newError(KindConfiguration, message)
}

// InvalidRequest wraps a client-side precondition failure on the
// request body itself — empty/duplicate/over-cap model_selection, or a
// model_selection entry that isn't in the free catalog. Always a 400:
// retrying the identical request can never succeed.
func InvalidRequest(message string) *Error {
	return newError(KindInvalidRequest, message)
}

// SpendingCap wraps a pre-flight ledger rejection.
func SpendingCap(capType string, used, cap float64) *Error {
	e := newError(KindSpendingCap, fmt.Sprintf("%s spending cap exceeded: %.4f / %.4f", capType, used, cap))
	e.CapType = capType
	e.Used = used
	e.Cap = cap
	return e
}

// As extracts an *Error from a generic error value, if present.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
