package httpclient

import (
	"net/http"
	"time"
)

// New builds an http.Client for single-shot API calls. Streaming requests
// must use NewStreaming instead: a client-level timeout would kill
// long-lived progress bodies mid-stream.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewStreaming builds an http.Client without a client-level timeout.
// Lifetime is bounded by the request context.
func NewStreaming() *http.Client {
	return &http.Client{}
}

type headerRoundTripper struct {
	base  http.RoundTripper
	token string
}

// WrapTransportWithAuth adds a bearer token to every outgoing request.
func WrapTransportWithAuth(base http.RoundTripper, token string) http.RoundTripper {
	if token == "" {
		return base
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &headerRoundTripper{base: base, token: token}
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(cloned)
}
