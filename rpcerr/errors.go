// rpckit - type-safe RPC client runtime core
// SPDX-License-Identifier: MIT

// Package rpcerr is the typed error taxonomy for rpckit dispatch, batch, and
// subscription failures. Every error the runtime hands back to a caller is
// one of the five kinds below; nothing else escapes the core.
package rpcerr

import "fmt"

// Kind discriminates the closed set of error variants. Prefer a tagged union
// over a type hierarchy so predicates and match helpers can switch on one
// field instead of walking an inheritance chain.
type Kind string

const (
	KindCall       Kind = "CALL"
	KindTimeout    Kind = "TIMEOUT"
	KindCancelled  Kind = "CANCELLED"
	KindValidation Kind = "VALIDATION"
	KindNetwork    Kind = "NETWORK"
)

// Virtual codes reported for non-CallError kinds.
const (
	CodeTimeout     = "TIMEOUT"
	CodeCancelled   = "CANCELLED"
	CodeValidation  = "VALIDATION_ERROR"
	CodeNetwork     = "NETWORK_ERROR"
	CodeUnknown     = "UNKNOWN"
	CodeRateLimited = "RATE_LIMITED"
)

// Error is the common interface satisfied by every taxonomy member. Callers
// can type-switch on Kind() or use the Is* helpers below.
type Error interface {
	error
	Kind() Kind
	// Code returns the observed code used for retryability classification:
	// CallError.Code verbatim, or the matching virtual code otherwise.
	Code() string
}

// ValidationIssue is one field-level rejection inside a ValidationError.
type ValidationIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CallError is a logical failure returned by the host.
type CallError struct {
	CodeVal string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func NewCallError(code, message string) *CallError {
	return &CallError{CodeVal: code, Message: message}
}

func (e *CallError) Error() string { return fmt.Sprintf("%s: %s", e.CodeVal, e.Message) }
func (e *CallError) Kind() Kind    { return KindCall }
func (e *CallError) Code() string  { return e.CodeVal }

// TimeoutError means dispatch exceeded its configured budget.
type TimeoutError struct {
	Path      string
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %dms", e.Path, e.TimeoutMs)
}
func (e *TimeoutError) Kind() Kind { return KindTimeout }
func (e *TimeoutError) Code() string { return CodeTimeout }

// CancelledError means the consumer cancelled the dispatch.
type CancelledError struct {
	Path   string
	Reason string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: cancelled", e.Path)
	}
	return fmt.Sprintf("%s: cancelled (%s)", e.Path, e.Reason)
}
func (e *CancelledError) Kind() Kind { return KindCancelled }
func (e *CancelledError) Code() string { return CodeCancelled }

// ValidationError means input/output schema rejection.
type ValidationError struct {
	Path   string
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed (%d issue(s))", e.Path, len(e.Issues))
}
func (e *ValidationError) Kind() Kind { return KindValidation }
func (e *ValidationError) Code() string { return CodeValidation }

// NetworkError means the transport failed below the RPC layer.
type NetworkError struct {
	Path     string
	Original error
}

func (e *NetworkError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("%s: network error", e.Path)
	}
	return fmt.Sprintf("%s: network error: %v", e.Path, e.Original)
}
func (e *NetworkError) Kind() Kind    { return KindNetwork }
func (e *NetworkError) Code() string  { return CodeNetwork }
func (e *NetworkError) Unwrap() error { return e.Original }

// Kind predicates — exactly one holds for any given Error value.

func IsCallError(err error) (*CallError, bool) {
	e, ok := err.(*CallError)
	return e, ok
}

func IsTimeoutError(err error) (*TimeoutError, bool) {
	e, ok := err.(*TimeoutError)
	return e, ok
}

func IsCancelledError(err error) (*CancelledError, bool) {
	e, ok := err.(*CancelledError)
	return e, ok
}

func IsValidationError(err error) (*ValidationError, bool) {
	e, ok := err.(*ValidationError)
	return e, ok
}

func IsNetworkError(err error) (*NetworkError, bool) {
	e, ok := err.(*NetworkError)
	return e, ok
}

// Match dispatches on the concrete kind, a pattern-match helper over the
// closed error set without an inheritance hierarchy.
func Match(err error, onCall func(*CallError), onTimeout func(*TimeoutError), onCancelled func(*CancelledError), onValidation func(*ValidationError), onNetwork func(*NetworkError)) {
	switch e := err.(type) {
	case *CallError:
		if onCall != nil {
			onCall(e)
		}
	case *TimeoutError:
		if onTimeout != nil {
			onTimeout(e)
		}
	case *CancelledError:
		if onCancelled != nil {
			onCancelled(e)
		}
	case *ValidationError:
		if onValidation != nil {
			onValidation(e)
		}
	case *NetworkError:
		if onNetwork != nil {
			onNetwork(e)
		}
	}
}

// ObservedCode returns the code used by the retryability table: CallError's
// code verbatim, or the matching virtual code for every other kind.
func ObservedCode(err error) string {
	if rerr, ok := err.(Error); ok {
		return rerr.Code()
	}
	return CodeUnknown
}

// retryableCodes is the default retryability set. Non-retryable otherwise,
// notably UNAUTHORIZED, FORBIDDEN, BAD_REQUEST, NOT_FOUND, VALIDATION_ERROR,
// CANCELLED.
var retryableCodes = map[string]bool{
	"INTERNAL_ERROR":       true,
	CodeTimeout:            true,
	"UNAVAILABLE":          true,
	"SERVICE_UNAVAILABLE":  true,
	CodeNetwork:            true,
}

// Retryable reports whether err's observed code is in the default retryable
// set. Callers with a custom retryableCodes list should classify themselves
// instead of calling this.
func Retryable(err error) bool {
	return retryableCodes[ObservedCode(err)]
}

// IsRateLimitError reports whether err is a CallError with code RATE_LIMITED.
func IsRateLimitError(err error) bool {
	ce, ok := IsCallError(err)
	return ok && ce.CodeVal == CodeRateLimited
}

// GetRateLimitRetryAfter extracts details.retry_after_ms from a rate-limit
// CallError, or (0, false) if err isn't one / lacks the field.
func GetRateLimitRetryAfter(err error) (int64, bool) {
	ce, ok := IsCallError(err)
	if !ok || ce.CodeVal != CodeRateLimited || ce.Details == nil {
		return 0, false
	}
	switch v := ce.Details["retry_after_ms"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
