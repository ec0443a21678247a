package docstream

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"docstream/internal/async"
	"docstream/internal/config"
	"docstream/internal/errors"
	"docstream/internal/httpclient"
	"docstream/internal/logging"
	"docstream/internal/telemetry"
	"docstream/internal/transport"
	"docstream/pkg/types"
)

// Config, Task and friends are aliased here so embedding applications only
// need this package on their import path.
type (
	Config    = config.Config
	Task      = types.Task
	TaskError = types.TaskError
	Progress  = types.Progress
	Status    = types.Status
	Logger    = logging.Logger
)

const (
	StatusQueued    = types.StatusQueued
	StatusRunning   = types.StatusRunning
	StatusCompleted = types.StatusCompleted
	StatusFailed    = types.StatusFailed
	StatusCancelled = types.StatusCancelled
)

// Transport selects how a watch observes task progress.
type Transport string

const (
	// TransportChunked reads progress from a chunked ND-JSON response body.
	TransportChunked Transport = "chunked"
	// TransportPush subscribes to server-initiated events (SSE or WebSocket,
	// per Config.PushTransport).
	TransportPush Transport = "push"
	// TransportPoll fetches the task document on a fixed interval.
	TransportPoll Transport = "poll"
)

// PushChannel is the server-push message source used by TransportPush.
// Provided so tests and embedders can substitute their own.
type PushChannel = transport.PushChannel

// PushChannelFactory opens a push channel for one task.
type PushChannelFactory func(ctx context.Context, taskID string) (PushChannel, error)

const maxTaskDocumentSize = 1 << 20

// Option customizes a Client.
type Option func(*Client)

// WithLogger routes client diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(logger) }
}

// WithHTTPClient replaces the client used for single-shot API calls
// (Start, GetTask, polling fetches).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.api = client }
}

// WithStreamingClient replaces the client used for long-lived progress
// streams. It must not carry a client-level timeout.
func WithStreamingClient(client *http.Client) Option {
	return func(c *Client) { c.streaming = client }
}

// WithPushChannelFactory replaces how push channels are opened. The default
// factory subscribes to the backend's SSE or WebSocket endpoint per config.
func WithPushChannelFactory(factory PushChannelFactory) Option {
	return func(c *Client) { c.pushFactory = factory }
}

// Client is the task facade: it starts backend tasks and watches them to
// completion over any of the supported transports, normalizing all of them to
// the same progress-then-terminal contract.
type Client struct {
	cfg    Config
	logger Logger

	api       *http.Client
	streaming *http.Client

	metrics      *telemetry.Metrics
	reports      *telemetry.ReportIDs
	fingerprints *telemetry.ErrorFingerprints

	pushFactory PushChannelFactory
}

// LoadConfig reads a Config from an optional YAML file plus DOCSTREAM_* env
// vars.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// New builds a Client. cfg.BaseURL is required; every other field defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	c := &Client{
		cfg:          cfg,
		logger:       logging.NewComponentLogger("docstream"),
		metrics:      telemetry.DefaultMetrics(),
		reports:      telemetry.NewReportIDs(0),
		fingerprints: telemetry.NewErrorFingerprints(telemetry.DedupeConfig{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.api == nil {
		api := httpclient.NewWithCircuitBreaker(cfg.RequestTimeout, "docstream-api")
		api.Transport = httpclient.WrapTransportWithAuth(api.Transport, cfg.APIToken)
		c.api = api
	}
	if c.streaming == nil {
		streaming := httpclient.NewStreaming()
		streaming.Transport = httpclient.WrapTransportWithAuth(nil, cfg.APIToken)
		c.streaming = streaming
	}
	if c.pushFactory == nil {
		c.pushFactory = c.defaultPushChannel
	}
	return c, nil
}

// NewIdempotencyKey generates a key suitable for StartOptions.IdempotencyKey.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// StartRequest describes the operation to run.
type StartRequest struct {
	// Operation names the backend operation, e.g. "verify_template",
	// "approve_mapping", "run_agent".
	Operation string `json:"operation"`
	// DocumentID scopes the operation to one document when set.
	DocumentID string `json:"document_id,omitempty"`
	// Params carries operation-specific arguments verbatim.
	Params map[string]any `json:"params,omitempty"`
}

// StartOptions carries per-submit options.
type StartOptions struct {
	// IdempotencyKey is forwarded in the Idempotency-Key header so retried
	// submits collapse onto one backend task. Empty means no header.
	IdempotencyKey string
}

// Start submits a task and returns its initial document. The task is not
// watched; pass the returned ID to Watch or Subscribe.
func (c *Client) Start(ctx context.Context, req StartRequest, opts StartOptions) (*Task, error) {
	if strings.TrimSpace(req.Operation) == "" {
		return nil, fmt.Errorf("operation is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode start request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("tasks"), bytes.NewReader(body))
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if opts.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", opts.IdempotencyKey)
	}
	return c.doTask(httpReq)
}

// GetTask fetches the current task document. Completed tasks come back with
// artifact URLs extracted and resolved against the base origin.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("tasks", taskID), nil)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	task, err := c.doTask(req)
	if err != nil {
		return nil, err
	}
	c.normalizeArtifacts(task)
	return task, nil
}

// WatchOptions configures one watch.
type WatchOptions struct {
	// Transport defaults to TransportChunked.
	Transport Transport
	// OnProgress receives each progress observation in arrival order. Panics
	// in the callback are isolated and logged.
	OnProgress func(Progress)
	// OnSnapshot receives the full task document on each polling tick; the
	// caller decides what counts as new. Polling transport only.
	OnSnapshot func(*Task)
	// PollInterval and PollTimeout override the configured polling knobs.
	PollInterval time.Duration
	PollTimeout  time.Duration
	// Channel overrides the push channel for this watch. Push transport only.
	Channel PushChannel
}

// Watch observes taskID until a terminal outcome: the terminal task document
// on success, or an error from the watch taxonomy (backend error, protocol
// violation, transport error, cancellation, polling timeout). Whatever the
// transport, the caller sees zero or more progress callbacks followed by
// exactly one return.
func (c *Client) Watch(ctx context.Context, taskID string, opts WatchOptions) (*Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	tr := opts.Transport
	if tr == "" {
		tr = TransportChunked
	}

	start := time.Now()
	var task *Task
	var err error
	switch tr {
	case TransportChunked:
		task, err = c.watchChunked(ctx, taskID, opts)
	case TransportPush:
		task, err = c.watchPush(ctx, taskID, opts)
	case TransportPoll:
		task, err = c.watchPoll(ctx, taskID, opts)
	default:
		return nil, fmt.Errorf("unknown transport %q", tr)
	}
	c.metrics.ObserveWatch(string(tr), watchOutcome(err), time.Since(start))
	if err != nil {
		c.reportWatchFailure(taskID, string(tr), err)
		return nil, err
	}
	return task, nil
}

func (c *Client) watchChunked(ctx context.Context, taskID string, opts WatchOptions) (*Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("tasks", taskID, "stream"), nil)
	if err != nil {
		return nil, &errors.TransportError{Err: err}
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.streaming.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.FromContext(ctxErr)
		}
		return nil, &errors.TransportError{Err: err}
	}

	result, err := transport.RunChunked(ctx, resp, transport.ChunkedConfig{
		OnProgress: c.progressSink(string(TransportChunked), opts),
		Logger:     c.logger,
	})
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:        taskID,
		Status:    StatusCompleted,
		Result:    result.Raw,
		Artifacts: result.Artifacts,
	}
	c.normalizeArtifacts(task)
	return task, nil
}

func (c *Client) watchPush(ctx context.Context, taskID string, opts WatchOptions) (*Task, error) {
	channel := opts.Channel
	if channel == nil {
		var err error
		channel, err = c.pushFactory(ctx, taskID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.FromContext(ctxErr)
			}
			return nil, &errors.TransportError{Err: err, Detail: "open push channel"}
		}
	}

	controller := transport.NewPushController(channel, transport.PushConfig{
		OnProgress: c.progressSink(string(TransportPush), opts),
		Logger:     c.logger,
	})
	payload, err := controller.Run(ctx)
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:     taskID,
		Status: StatusCompleted,
		Result: payload,
	}
	c.normalizeArtifacts(task)
	return task, nil
}

func (c *Client) watchPoll(ctx context.Context, taskID string, opts WatchOptions) (*Task, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = c.cfg.PollInterval
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = c.cfg.PollTimeout
	}

	snapshot, err := transport.Poll(ctx, func(ctx context.Context) (*Task, error) {
		return c.GetTask(ctx, taskID)
	}, transport.PollConfig{
		Interval: interval,
		Timeout:  timeout,
		OnProgress: func(snapshot *Task) {
			c.metrics.ObserveEvent(string(TransportPoll), "snapshot")
			if opts.OnSnapshot != nil {
				opts.OnSnapshot(snapshot)
			}
			if opts.OnProgress != nil && snapshot.Progress != nil {
				opts.OnProgress(*snapshot.Progress)
			}
		},
		Logger: c.logger,
	})
	if err != nil {
		return nil, err
	}

	if snapshot.Status == StatusFailed {
		return nil, backendErrorFromTask(snapshot)
	}
	// Cancelled server-side is a legitimate terminal document, not a caller
	// abort; it resolves the watch rather than failing it.
	return snapshot, nil
}

// progressSink adapts raw progress payloads to the caller's callback, with
// the callback isolated so a panic there cannot break the watch.
func (c *Client) progressSink(transportName string, opts WatchOptions) func(json.RawMessage) {
	return func(payload json.RawMessage) {
		c.metrics.ObserveEvent(transportName, "progress")
		if opts.OnProgress == nil {
			return
		}
		progress := types.ParseProgress(payload)
		async.Invoke(c.logger, "progress callback", func() {
			opts.OnProgress(progress)
		})
	}
}

// reportWatchFailure logs one terminal failure per task with a stable report
// id, suppressing repeats of the same failure within the dedupe window.
func (c *Client) reportWatchFailure(taskID, transportName string, err error) {
	if errors.IsCanceled(err) {
		return
	}
	fingerprint := taskID + "|" + err.Error()
	if c.fingerprints.Suppress(fingerprint) {
		return
	}
	c.logger.Error("watch %s over %s failed (report %s): %v", taskID, transportName, c.reports.For(taskID), err)
}

func (c *Client) doTask(req *http.Request) (*Task, error) {
	resp, err := c.api.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, errors.FromContext(ctxErr)
		}
		return nil, &errors.TransportError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := httpclient.ReadAllWithLimit(resp.Body, maxTaskDocumentSize)
	if err != nil {
		return nil, &errors.TransportError{Err: err, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errors.TransportError{
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(body)),
		}
	}

	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, &errors.ProtocolError{Detail: fmt.Sprintf("malformed task document: %v", err)}
	}
	return &task, nil
}

// normalizeArtifacts pulls artifact links out of a completed result and
// resolves relative ones against the configured base origin.
func (c *Client) normalizeArtifacts(task *Task) {
	if task.Status != StatusCompleted {
		return
	}
	if task.Artifacts == nil {
		task.Artifacts = types.ExtractArtifacts(task.Result)
	}
	types.ResolveArtifacts(task.Artifacts, c.cfg.BaseURL)
}

func (c *Client) defaultPushChannel(ctx context.Context, taskID string) (PushChannel, error) {
	switch strings.ToLower(c.cfg.PushTransport) {
	case "websocket":
		wsURL, err := c.wsEndpoint(taskID)
		if err != nil {
			return nil, err
		}
		header := http.Header{}
		if c.cfg.APIToken != "" {
			header.Set("Authorization", "Bearer "+c.cfg.APIToken)
		}
		return transport.DialWS(ctx, transport.WSConfig{
			URL:            wsURL,
			Header:         header,
			ReconnectDelay: c.cfg.PushReconnectDelay,
			Logger:         c.logger,
		})
	default:
		// Auth rides on the streaming client's transport.
		return transport.NewSSEChannel(transport.SSEConfig{
			URL:            c.endpoint("tasks", taskID, "events"),
			Client:         c.streaming,
			ReconnectDelay: c.cfg.PushReconnectDelay,
			InitialBuffer:  c.cfg.StreamInitialBuffer,
			MaxBuffer:      c.cfg.StreamMaxBuffer,
			Logger:         c.logger,
		}), nil
	}
}

func (c *Client) endpoint(parts ...string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(c.cfg.BaseURL, "/"))
	b.WriteString("/api/v1")
	for _, part := range parts {
		b.WriteString("/")
		b.WriteString(url.PathEscape(part))
	}
	return b.String()
}

func (c *Client) wsEndpoint(taskID string) (string, error) {
	parsed, err := url.Parse(c.endpoint("tasks", taskID, "ws"))
	if err != nil {
		return "", fmt.Errorf("build websocket endpoint: %w", err)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	return parsed.String(), nil
}

func backendErrorFromTask(task *Task) error {
	if task.Error == nil {
		return &errors.BackendError{Detail: "task failed"}
	}
	return &errors.BackendError{
		Code:      task.Error.Code,
		Detail:    task.Error.Message,
		Retryable: task.Error.Retryable,
	}
}

func watchOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.IsCanceled(err):
		return "canceled"
	case errors.IsTimeout(err):
		return "timeout"
	case errors.IsProtocolViolation(err):
		return "protocol_violation"
	default:
		var backend *errors.BackendError
		if stderrors.As(err, &backend) {
			return "backend_error"
		}
		return "transport_error"
	}
}
