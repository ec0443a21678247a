package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docstream/internal/errors"
	"docstream/pkg/types"
)

// chunkServer writes each chunk verbatim with a flush in between, so chunk
// boundaries hit the client exactly where the test script puts them.
func chunkServer(t *testing.T, chunks []string, hang bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatalf("expected flusher")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, chunk := range chunks {
			_, _ = w.Write([]byte(chunk))
			flusher.Flush()
		}
		if hang {
			<-r.Context().Done()
		}
	}))
}

func runAgainst(t *testing.T, ctx context.Context, url string, cfg ChunkedConfig) (*types.StreamResult, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return RunChunked(ctx, resp, cfg)
}

func TestRunChunkedMidRecordSplit(t *testing.T) {
	t.Parallel()

	chunks := []string{
		"{\"event\":\"stage\",\"pct\":10}\n{\"event\":\"stage\"",
		",\"pct\":55}\n{\"event\":\"result\",\"template_id\":\"t1\",\"artifacts\":{\"pdf_url\":\"/u/t1.pdf\"}}\n",
	}
	server := chunkServer(t, chunks, false)
	defer server.Close()

	var percents []float64
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	result, err := RunChunked(context.Background(), resp, ChunkedConfig{
		OnProgress: func(payload json.RawMessage) {
			var p struct {
				Pct float64 `json:"pct"`
			}
			if err := json.Unmarshal(payload, &p); err != nil {
				t.Errorf("bad progress payload: %v", err)
			}
			percents = append(percents, p.Pct)
		},
	})
	if err != nil {
		t.Fatalf("RunChunked: %v", err)
	}
	if len(percents) != 2 || percents[0] != 10 || percents[1] != 55 {
		t.Fatalf("unexpected progress sequence: %v", percents)
	}
	if result.TemplateID != "t1" {
		t.Fatalf("unexpected template id: %q", result.TemplateID)
	}
	if result.Artifacts["pdf_url"] != "/u/t1.pdf" {
		t.Fatalf("unexpected artifacts: %v", result.Artifacts)
	}
}

func TestRunChunkedResultWithoutTrailingNewline(t *testing.T) {
	t.Parallel()

	server := chunkServer(t, []string{"{\"event\":\"stage\",\"pct\":99}\n{\"event\":\"result\",\"template_id\":\"t9\"}"}, false)
	defer server.Close()

	progress := 0
	result, err := runAgainst(t, context.Background(), server.URL, ChunkedConfig{
		OnProgress: func(json.RawMessage) { progress++ },
	})
	if err != nil {
		t.Fatalf("RunChunked: %v", err)
	}
	if progress != 1 {
		t.Fatalf("expected one progress callback, got %d", progress)
	}
	if result.TemplateID != "t9" {
		t.Fatalf("unexpected template id: %q", result.TemplateID)
	}
}

func TestRunChunkedNoTerminalRecord(t *testing.T) {
	t.Parallel()

	server := chunkServer(t, []string{"{\"event\":\"stage\",\"pct\":10}\n{\"event\":\"stage\",\"pct\":20}\n"}, false)
	defer server.Close()

	_, err := runAgainst(t, context.Background(), server.URL, ChunkedConfig{})
	if !errors.IsProtocolViolation(err) {
		t.Fatalf("expected protocol violation, got %v", err)
	}
}

func TestRunChunkedBackendError(t *testing.T) {
	t.Parallel()

	server := chunkServer(t, []string{
		"{\"event\":\"stage\",\"pct\":10}\n{\"event\":\"error\",\"detail\":\"template parse failed\"}\n{\"event\":\"stage\",\"pct\":90}\n",
	}, false)
	defer server.Close()

	_, err := runAgainst(t, context.Background(), server.URL, ChunkedConfig{})
	var backendErr *errors.BackendError
	if !stderrors.As(err, &backendErr) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backendErr.Detail != "template parse failed" {
		t.Fatalf("detail lost: %q", backendErr.Detail)
	}
}

func TestRunChunkedIgnoresNoise(t *testing.T) {
	t.Parallel()

	server := chunkServer(t, []string{
		"\n\nnot json\n{\"event\":\"telemetry\"}\n{\"event\":\"result\",\"template_id\":\"t2\"}\n",
	}, false)
	defer server.Close()

	progress := 0
	_, err := runAgainst(t, context.Background(), server.URL, ChunkedConfig{
		OnProgress: func(json.RawMessage) { progress++ },
	})
	if err != nil {
		t.Fatalf("RunChunked: %v", err)
	}
	if progress != 0 {
		t.Fatalf("noise reached the progress callback %d times", progress)
	}
}

func TestRunChunkedNonSuccessStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream worker unavailable"))
	}))
	defer server.Close()

	_, err := runAgainst(t, context.Background(), server.URL, ChunkedConfig{})
	var transportErr *errors.TransportError
	if !stderrors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if transportErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("status lost: %d", transportErr.StatusCode)
	}
	if transportErr.Detail != "upstream worker unavailable" {
		t.Fatalf("body detail lost: %q", transportErr.Detail)
	}
	if !errors.IsRetryable(err) {
		t.Fatal("502 transport error should be retryable")
	}
}

func TestRunChunkedCancellation(t *testing.T) {
	t.Parallel()

	server := chunkServer(t, []string{"{\"event\":\"stage\",\"pct\":10}\n"}, true)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := RunChunked(ctx, resp, ChunkedConfig{
			OnProgress: func(json.RawMessage) { cancel() },
		})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.IsCanceled(err) {
			t.Fatalf("expected cancellation error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not settle after cancellation")
	}
}

func TestRunChunkedNilResponse(t *testing.T) {
	t.Parallel()

	_, err := RunChunked(context.Background(), nil, ChunkedConfig{})
	var transportErr *errors.TransportError
	if !stderrors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
