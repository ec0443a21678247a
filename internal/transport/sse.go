package transport

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"docstream/internal/logging"
)

// SSEConfig configures an SSE-backed push channel.
type SSEConfig struct {
	// URL is the event-stream endpoint.
	URL string
	// Client performs the subscribe requests. Must not carry a client-level
	// timeout; the stream lives as long as the watch.
	Client *http.Client
	// ReconnectDelay is the wait before re-subscribing after a transient
	// disconnect. Servers may override it per-stream via the retry field.
	ReconnectDelay time.Duration
	InitialBuffer  int
	MaxBuffer      int
	Logger         logging.Logger
}

// SSEChannel consumes a text/event-stream endpoint as a PushChannel. Dropped
// connections are re-subscribed transparently with the last seen event id;
// only a non-success subscribe response is treated as permanent closure.
type SSEChannel struct {
	cfg    SSEConfig
	logger logging.Logger

	mu          sync.Mutex
	resp        *http.Response
	scanner     *bufio.Scanner
	lastEventID string
	retryDelay  time.Duration
	closed      bool
}

// NewSSEChannel builds a channel; the first Receive performs the subscribe.
func NewSSEChannel(cfg SSEConfig) *SSEChannel {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &SSEChannel{
		cfg:        cfg,
		logger:     logging.OrNop(cfg.Logger),
		retryDelay: cfg.ReconnectDelay,
	}
}

// Receive returns the next event's data payload. Comment lines and fields
// other than data, id and retry are skipped at this layer; heartbeat
// filtering happens in the controller, which owns message semantics.
func (s *SSEChannel) Receive(ctx context.Context) (PushMessage, error) {
	for {
		if err := s.ensureConnected(ctx); err != nil {
			return PushMessage{}, err
		}

		data, err := s.readEvent()
		if err == nil {
			return PushMessage{Data: data}, nil
		}

		s.dropConnection()
		if s.isClosed() {
			return PushMessage{}, ErrChannelClosed
		}
		if ctx.Err() != nil {
			return PushMessage{}, ctx.Err()
		}

		// Transient disconnect: wait out the retry delay, then
		// re-subscribe on the next loop iteration.
		s.logger.Debug("event stream read failed (%v), reconnecting in %s", err, s.currentRetryDelay())
		select {
		case <-ctx.Done():
			return PushMessage{}, ctx.Err()
		case <-time.After(s.currentRetryDelay()):
		}
	}
}

// Close tears down the current connection and marks the channel permanently
// closed. Idempotent.
func (s *SSEChannel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.resp != nil {
		_ = s.resp.Body.Close()
		s.resp = nil
		s.scanner = nil
	}
	return nil
}

func (s *SSEChannel) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *SSEChannel) currentRetryDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryDelay
}

func (s *SSEChannel) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrChannelClosed
	}
	if s.scanner != nil {
		s.mu.Unlock()
		return nil
	}
	url := s.cfg.URL
	lastEventID := s.lastEventID
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build subscribe request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		return ErrChannelClosed
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = resp.Body.Close()
		return ErrChannelClosed
	}
	s.resp = resp
	s.scanner = newLineScanner(resp.Body, s.cfg.InitialBuffer, s.cfg.MaxBuffer)
	s.mu.Unlock()
	return nil
}

func (s *SSEChannel) dropConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resp != nil {
		_ = s.resp.Body.Close()
		s.resp = nil
		s.scanner = nil
	}
}

// readEvent accumulates SSE fields until the blank line that terminates an
// event, then returns the joined data payload.
func (s *SSEChannel) readEvent() ([]byte, error) {
	s.mu.Lock()
	scanner := s.scanner
	s.mu.Unlock()
	if scanner == nil {
		return nil, fmt.Errorf("not connected")
	}

	var dataLines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if len(dataLines) > 0 {
				return []byte(strings.Join(dataLines, "\n")), nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := splitSSEField(line)
		switch field {
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			s.mu.Lock()
			s.lastEventID = value
			s.mu.Unlock()
		case "retry":
			if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && ms > 0 {
				s.mu.Lock()
				s.retryDelay = time.Duration(ms) * time.Millisecond
				s.mu.Unlock()
			}
		}
		// The event field is intentionally unused: message semantics live
		// in the JSON payload's own discriminator.
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("event stream ended")
}

func splitSSEField(line string) (field, value string) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return line, ""
	}
	field = line[:i]
	value = line[i+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}
