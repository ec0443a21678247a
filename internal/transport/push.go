package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"

	"docstream/internal/errors"
	"docstream/internal/logging"
)

// ErrChannelClosed is returned by PushChannel.Receive once the channel is in
// a permanent-closed state: the subscription cannot be revived and the
// failure must be escalated to the caller. Transient disconnects never
// surface through Receive; channels handle their own reconnection.
var ErrChannelClosed = stderrors.New("push channel permanently closed")

// PushMessage is one server-initiated event message. Data is the message's
// raw JSON payload.
type PushMessage struct {
	Data []byte
}

// PushChannel abstracts the server-push transport (SSE or WebSocket).
type PushChannel interface {
	// Receive blocks until the next message, ctx cancellation, or
	// permanent channel closure (ErrChannelClosed).
	Receive(ctx context.Context) (PushMessage, error)
	// Close tears the channel down. Idempotent.
	Close() error
}

// transientBackendCode is the error code the backend emits mid-stream when it
// hits a retryable internal condition it will recover from on its own. The
// controller swallows it without surfacing anything; the same stream
// continues. Whether this code can ever be genuinely fatal is a backend
// contract assumption, not something the client can observe.
const transientBackendCode = "task_retry"

// pushEnvelope is the wire shape of every push message.
type pushEnvelope struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Data  json.RawMessage `json:"data"`
}

// PushConfig configures a PushController.
type PushConfig struct {
	// OnProgress receives each progress payload in arrival order.
	OnProgress func(payload json.RawMessage)
	Logger     logging.Logger
}

// PushController drives a PushChannel until terminal completion. Heartbeats
// never reach the caller, a transient backend error code is swallowed, any
// other error message terminates the watch. A closed guard on every dispatch
// path keeps terminal delivery at-most-once even when the underlying channel
// delivers extra messages after completion, which the transport layer is
// known to do.
type PushController struct {
	channel PushChannel
	cfg     PushConfig
	logger  logging.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewPushController wraps an open channel.
func NewPushController(channel PushChannel, cfg PushConfig) *PushController {
	return &PushController{
		channel: channel,
		cfg:     cfg,
		logger:  logging.OrNop(cfg.Logger),
	}
}

// Run consumes messages until a terminal outcome and returns the completion
// payload or the classified error. The channel is torn down before Run
// returns, whatever the outcome.
func (c *PushController) Run(ctx context.Context) (json.RawMessage, error) {
	defer func() {
		_ = c.Close()
	}()

	for {
		msg, err := c.channel.Receive(ctx)
		if err != nil {
			if !c.markClosed() {
				return nil, &errors.CanceledError{}
			}
			if stderrors.Is(err, ErrChannelClosed) {
				return nil, &errors.TransportError{Err: err, Detail: "push channel closed"}
			}
			if translated := errors.FromContext(err); translated != err {
				return nil, translated
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.FromContext(ctxErr)
			}
			return nil, &errors.TransportError{Err: err}
		}

		payload, terminal, err := c.dispatch(msg)
		if err != nil {
			return nil, err
		}
		if terminal {
			return payload, nil
		}
	}
}

// dispatch routes one message. Terminal outcomes flip the closed flag first
// so racing deliveries cannot produce a second terminal callback.
func (c *PushController) dispatch(msg PushMessage) (json.RawMessage, bool, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logger.Debug("ignoring unparsable push message (%d bytes)", len(msg.Data))
		return nil, false, nil
	}

	switch envelope.Event {
	case "heartbeat":
		// Pure keep-alive; must not reach the caller or reset anything.
		return nil, false, nil
	case "progress":
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, false, nil
		}
		if c.cfg.OnProgress != nil {
			c.cfg.OnProgress(envelope.Data)
		}
		return nil, false, nil
	case "complete":
		if !c.markClosed() {
			return nil, false, nil
		}
		return envelope.Data, true, nil
	case "error":
		if envelope.Code == transientBackendCode {
			// The backend retries internally and continues this stream.
			c.logger.Debug("swallowing transient backend condition %q", envelope.Code)
			return nil, false, nil
		}
		if !c.markClosed() {
			return nil, false, nil
		}
		detail := pushErrorDetail(envelope.Data)
		return nil, true, &errors.BackendError{Code: envelope.Code, Detail: detail}
	default:
		c.logger.Debug("ignoring push message with unknown event %q", envelope.Event)
		return nil, false, nil
	}
}

// markClosed flips the closed flag. It returns false when the controller was
// already closed, in which case the caller must not dispatch.
func (c *PushController) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// Close marks the controller closed and tears down the channel. Safe to call
// any number of times, from any goroutine.
func (c *PushController) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	var err error
	c.closeOnce.Do(func() {
		err = c.channel.Close()
	})
	return err
}

// pushErrorDetail extracts a human-readable detail from an error payload,
// accepting both {"message": ...} objects and bare strings.
func pushErrorDetail(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var object struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(data, &object); err == nil {
		if object.Message != "" {
			return object.Message
		}
		if object.Detail != "" {
			return object.Detail
		}
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}
	return strings.TrimSpace(string(data))
}
