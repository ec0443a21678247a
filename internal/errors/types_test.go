package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"timeout", &TimeoutError{Timeout: time.Second, Elapsed: 2 * time.Second}, true},
		{"retryable backend", &BackendError{Code: "overloaded", Detail: "busy", Retryable: true}, true},
		{"fatal backend", &BackendError{Code: "invalid_template", Detail: "bad input"}, false},
		{"transient transport", &TransportError{StatusCode: http.StatusServiceUnavailable}, true},
		{"permanent transport", &TransportError{StatusCode: http.StatusNotFound}, false},
		{"protocol violation", NewNoResultError(), false},
		{"canceled", &CanceledError{}, false},
		{"plain error", fmt.Errorf("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.retryable {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.retryable)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	if err := FromContext(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if !IsCanceled(FromContext(context.Canceled)) {
		t.Fatal("context.Canceled should map to CanceledError")
	}
	if !IsTimeout(FromContext(context.DeadlineExceeded)) {
		t.Fatal("context.DeadlineExceeded should map to TimeoutError")
	}
	passthrough := fmt.Errorf("other")
	if got := FromContext(passthrough); got != passthrough {
		t.Fatalf("unexpected translation: %v", got)
	}
}

func TestWrappedTaxonomy(t *testing.T) {
	wrapped := fmt.Errorf("watch failed: %w", &ProtocolError{Detail: "no result payload received"})
	if !IsProtocolViolation(wrapped) {
		t.Fatal("wrapped ProtocolError not detected")
	}
	if IsProtocolViolation(&BackendError{Detail: "x"}) {
		t.Fatal("BackendError misclassified as protocol violation")
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
	})

	failing := fmt.Errorf("dial refused")
	cb.Mark(failing)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	cb.Mark(failing)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", cb.State())
	}
	if err := cb.Allow(); err == nil {
		t.Fatal("expected open circuit to reject")
	}

	time.Sleep(15 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("expected half-open probe to be allowed, got %v", err)
	}
	cb.Mark(nil)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after recovery, got %s", cb.State())
	}
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker("exec", DefaultCircuitBreakerConfig())
	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
}
