package docstream

import "docstream/internal/errors"

// The watch error taxonomy, aliased for callers. Every error returned by
// Watch, Subscribe or Start is one of these (or wraps one):
//
//   - TransportError: the connection or HTTP exchange failed
//   - ProtocolError: the backend broke the stream contract
//   - BackendError: the backend reported a terminal task failure
//   - CanceledError: the caller aborted the watch
//   - TimeoutError: polling exceeded its deadline
type (
	TransportError = errors.TransportError
	ProtocolError  = errors.ProtocolError
	BackendError   = errors.BackendError
	CanceledError  = errors.CanceledError
	TimeoutError   = errors.TimeoutError
)

// IsRetryable reports whether retrying the operation could plausibly succeed:
// polling timeouts, backend errors flagged retryable, and transport errors
// with transient HTTP statuses.
func IsRetryable(err error) bool {
	return errors.IsRetryable(err)
}

// IsCanceled reports whether the watch ended because the caller aborted it.
// UI layers typically suppress error surfaces for this category.
func IsCanceled(err error) bool {
	return errors.IsCanceled(err)
}

// IsTimeout reports whether a polling watch exceeded its deadline.
func IsTimeout(err error) bool {
	return errors.IsTimeout(err)
}

// IsProtocolViolation reports whether the backend ended a stream without a
// terminal record.
func IsProtocolViolation(err error) bool {
	return errors.IsProtocolViolation(err)
}
