package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docstream/internal/errors"
)

func TestAuthTransportSetsBearer(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := New(time.Second)
	client.Transport = WrapTransportWithAuth(client.Transport, "secret-token")
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if got != "Bearer secret-token" {
		t.Fatalf("unexpected auth header: %q", got)
	}
}

func TestAuthTransportNoTokenPassthrough(t *testing.T) {
	if WrapTransportWithAuth(nil, "") != nil {
		t.Fatal("empty token should not wrap the transport")
	}
}

func TestCircuitBreakerOpensAfterServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewWithCircuitBreakerConfig(time.Second, "test-backend", errors.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		_ = resp.Body.Close()
	}

	if _, err := client.Get(server.URL); err == nil {
		t.Fatal("expected open circuit to reject the third request")
	} else if !strings.Contains(err.Error(), "circuit breaker open") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReadAllWithLimit(t *testing.T) {
	data, err := ReadAllWithLimit(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected data: %q", data)
	}

	if _, err := ReadAllWithLimit(strings.NewReader("hello world"), 5); !IsResponseTooLarge(err) {
		t.Fatalf("expected ResponseTooLargeError, got %v", err)
	}
}
