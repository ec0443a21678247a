package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"docstream/internal/logging"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WSConfig configures a WebSocket-backed push channel.
type WSConfig struct {
	// URL is the ws:// or wss:// subscribe endpoint.
	URL string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// Header is passed to the dial handshake (auth tokens).
	Header map[string][]string
	// ReconnectDelay is the wait before redialing after an abnormal
	// disconnect.
	ReconnectDelay time.Duration
	Logger         logging.Logger
}

// WSChannel consumes a WebSocket endpoint as a PushChannel. A normal or
// going-away close frame is a permanent-closed state; anything else is a
// transient disconnect handled by redialing internally.
type WSChannel struct {
	cfg    WSConfig
	logger logging.Logger

	msgs chan PushMessage

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// DialWS connects and starts the read and keep-alive loops. The channel
// stays usable across transient disconnects until Close is called, the
// server closes normally, or ctx is canceled.
func DialWS(ctx context.Context, cfg WSConfig) (*WSChannel, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}

	channel := &WSChannel{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
		msgs:   make(chan PushMessage, 16),
	}
	if err := channel.dial(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	channel.cancel = cancel
	channel.group = group
	group.Go(func() error { return channel.readLoop(groupCtx) })
	group.Go(func() error { return channel.pingLoop(groupCtx) })
	return channel, nil
}

// Receive returns the next message, or ErrChannelClosed once the channel is
// permanently closed.
func (w *WSChannel) Receive(ctx context.Context) (PushMessage, error) {
	select {
	case <-ctx.Done():
		return PushMessage{}, ctx.Err()
	case msg, ok := <-w.msgs:
		if !ok {
			return PushMessage{}, ErrChannelClosed
		}
		return msg, nil
	}
}

// Close tears down the connection and stops the background loops. Idempotent.
func (w *WSChannel) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	w.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(wsWriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.group != nil {
		_ = w.group.Wait()
	}
	return nil
}

func (w *WSChannel) dial(ctx context.Context) error {
	conn, resp, err := w.cfg.Dialer.DialContext(ctx, w.cfg.URL, w.cfg.Header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return fmt.Errorf("dial %s: status %d: %w", w.cfg.URL, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s: %w", w.cfg.URL, err)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()
		return ErrChannelClosed
	}
	w.conn = conn
	w.mu.Unlock()
	return nil
}

func (w *WSChannel) currentConn() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *WSChannel) readLoop(ctx context.Context) error {
	defer close(w.msgs)

	for {
		conn := w.currentConn()
		if conn == nil {
			return nil
		}
		_, data, err := conn.ReadMessage()
		if err == nil {
			select {
			case w.msgs <- PushMessage{Data: data}:
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if w.isClosed() || ctx.Err() != nil {
			return nil
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			// The server is done with this subscription for good.
			w.logger.Debug("websocket closed by server: %v", err)
			return nil
		}

		// Abnormal disconnect: redial until it works or the watch ends.
		w.logger.Debug("websocket read failed (%v), redialing in %s", err, w.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.cfg.ReconnectDelay):
		}
		if err := w.dial(ctx); err != nil {
			if w.isClosed() || ctx.Err() != nil {
				return nil
			}
			w.logger.Warn("websocket redial failed: %v", err)
			return nil
		}
	}
}

func (w *WSChannel) pingLoop(ctx context.Context) error {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			conn := w.currentConn()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				w.logger.Debug("websocket ping failed: %v", err)
			}
		}
	}
}

func (w *WSChannel) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
