package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"

	"docstream/internal/errors"
	"docstream/internal/httpclient"
	"docstream/internal/logging"
	"docstream/internal/stream"
	"docstream/pkg/types"
)

const errorBodyLimit = 64 * 1024

// ChunkedConfig configures one chunked watch attempt.
type ChunkedConfig struct {
	// OnProgress receives each progress record in arrival order.
	OnProgress func(payload json.RawMessage)
	// ReadBuffer is the per-read chunk size; zero means the default.
	ReadBuffer int
	Logger     logging.Logger
}

// RunChunked consumes a chunked ND-JSON response body until a terminal record
// arrives. It returns the terminal result, or an error from the watch
// taxonomy: a backend error for a terminal-error record, a protocol violation
// when the stream ends without a terminal record, a transport error for a
// non-success response, and a cancellation error when ctx is canceled.
//
// Cancellation rides on the request context: when ctx fires, the in-flight
// body read fails and the loop observes it at its next suspension point.
func RunChunked(ctx context.Context, resp *http.Response, cfg ChunkedConfig) (*types.StreamResult, error) {
	logger := logging.OrNop(cfg.Logger)

	if resp == nil || resp.Body == nil {
		return nil, &errors.TransportError{Detail: "response has no body"}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The stream is never entered; the body is a plain error message.
		body, _ := httpclient.ReadAllWithLimit(resp.Body, errorBodyLimit)
		return nil, &errors.TransportError{
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
	}

	readBuffer := cfg.ReadBuffer
	if readBuffer <= 0 {
		readBuffer = 32 * 1024
	}

	decoder := stream.NewFrameDecoder()
	buf := make([]byte, readBuffer)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range decoder.Write(buf[:n]) {
				result, terminal, err := dispatchChunkedEvent(line, resp, cfg.OnProgress, logger)
				if err != nil {
					return nil, err
				}
				if terminal {
					return result, nil
				}
			}
		}
		if readErr == nil {
			continue
		}
		if stderrors.Is(readErr, io.EOF) {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.FromContext(ctxErr)
		}
		return nil, &errors.TransportError{Err: readErr}
	}

	// Stream ended; a final unterminated line may still carry the terminal
	// record.
	if tail, ok := decoder.Flush(); ok {
		result, terminal, err := dispatchChunkedEvent(tail, resp, cfg.OnProgress, logger)
		if err != nil {
			return nil, err
		}
		if terminal {
			return result, nil
		}
	}

	return nil, errors.NewNoResultError()
}

// dispatchChunkedEvent classifies one line and routes it. It returns a
// non-nil result with terminal=true on success, an error for terminal
// failures, and (nil, false, nil) for anything that keeps the stream open.
func dispatchChunkedEvent(line []byte, resp *http.Response, onProgress func(json.RawMessage), logger logging.Logger) (*types.StreamResult, bool, error) {
	event := stream.Classify(line)
	switch event.Kind {
	case stream.KindProgress:
		if onProgress != nil {
			onProgress(event.Payload)
		}
		return nil, false, nil
	case stream.KindResult:
		return types.ParseStreamResult(event.Payload), true, nil
	case stream.KindError:
		// Stop the underlying read before surfacing the failure. Close
		// errors are swallowed; the read is already doomed.
		_ = resp.Body.Close()
		return nil, false, &errors.BackendError{Detail: event.Detail}
	default:
		logger.Debug("ignoring unclassified stream record (%d bytes)", len(line))
		return nil, false, nil
	}
}
