package transport

import (
	"context"
	"time"

	"docstream/internal/async"
	"docstream/internal/errors"
	"docstream/internal/logging"
	"docstream/pkg/types"
)

const (
	// DefaultPollInterval and DefaultPollTimeout apply when PollConfig
	// leaves them zero.
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// FetchFunc retrieves the current task snapshot.
type FetchFunc func(ctx context.Context) (*types.Task, error)

// PollConfig configures one polling watch attempt.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnProgress receives the full snapshot each tick; the caller decides
	// what counts as new. Panics in the callback are isolated and logged so
	// a misbehaving callback cannot break task tracking.
	OnProgress func(task *types.Task)
	Logger     logging.Logger
}

// Poll fetches task state on a fixed interval until a terminal status,
// the timeout, or ctx cancellation. The timeout error is retryable: the task
// may legitimately still be progressing server-side.
func Poll(ctx context.Context, fetch FetchFunc, cfg PollConfig) (*types.Task, error) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	logger := logging.OrNop(cfg.Logger)

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(err)
		}
		elapsed := time.Since(start)
		if elapsed >= timeout {
			return nil, &errors.TimeoutError{Timeout: timeout, Elapsed: elapsed}
		}

		snapshot, err := fetch(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, errors.FromContext(ctxErr)
			}
			return nil, err
		}

		if cfg.OnProgress != nil {
			async.Invoke(logger, "poll progress callback", func() {
				cfg.OnProgress(snapshot)
			})
		}

		if snapshot.Status.Terminal() {
			return snapshot, nil
		}

		// Never sleep past the deadline; the timeout must fire at
		// approximately its configured value regardless of interval.
		sleep := interval
		if remaining := timeout - time.Since(start); remaining < sleep {
			sleep = remaining
		}
		if sleep < 0 {
			sleep = 0
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.FromContext(ctx.Err())
		case <-timer.C:
		}
	}
}
