package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// The error taxonomy for a watch attempt. Every fatal category surfaces as
// exactly one of these types so callers can decide whether to offer a retry
// action without string matching.

// TransportError reports that the underlying connection failed before any
// classified record arrived (non-success HTTP status, missing body, dial
// failure). Never retried by the client itself.
type TransportError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Detail     string // response body text when the server provided one
}

func (e *TransportError) Error() string {
	if e.Detail != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.Detail)
		}
		return fmt.Sprintf("transport error: %s", e.Detail)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a backend contract breach: the stream ended without a
// terminal record ever arriving. Distinct from both transport failures and
// explicit backend errors.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Detail)
}

// NewNoResultError builds the ProtocolError used when a progress stream ends
// with no terminal record.
func NewNoResultError() *ProtocolError {
	return &ProtocolError{Detail: "no result payload received"}
}

// BackendError carries a backend-supplied terminal error verbatim.
type BackendError struct {
	Code      string
	Detail    string
	Retryable bool
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error [%s]: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("backend error: %s", e.Detail)
}

// CanceledError reports a caller-initiated abort. UI layers suppress error
// surfaces for this category.
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("watch canceled: %v", e.Err)
	}
	return "watch canceled"
}

func (e *CanceledError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that polling exceeded its deadline. Marked retryable
// since the task may legitimately still be running server-side.
type TimeoutError struct {
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task polling timed out after %s (limit %s)", e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// FromContext translates a context error into the taxonomy: cancellation
// becomes CanceledError, deadline expiry becomes TimeoutError. Other errors
// pass through unchanged.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return &CanceledError{Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &TimeoutError{}
	default:
		return err
	}
}

// IsCanceled reports whether err belongs to the cancellation category.
func IsCanceled(err error) bool {
	var canceled *CanceledError
	return errors.As(err, &canceled) || errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a polling timeout.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// IsProtocolViolation reports whether err signals a backend contract breach.
func IsProtocolViolation(err error) bool {
	var protocol *ProtocolError
	return errors.As(err, &protocol)
}

// IsRetryable reports whether a caller may reasonably offer a retry action.
// Timeouts are always retryable, backend errors carry an explicit flag, and
// transport errors are retryable when the status suggests a transient
// server-side condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var backend *BackendError
	if errors.As(err, &backend) {
		return backend.Retryable
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return isTransientHTTPStatus(transport.StatusCode)
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
