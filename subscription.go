package docstream

import (
	"context"

	"docstream/internal/async"
)

// Subscription is a handle to a watch running in its own goroutine. It
// settles exactly once: with the terminal task document, or with an error
// from the watch taxonomy. Cancel settles it with a cancellation error.
type Subscription struct {
	taskID string
	cancel context.CancelFunc
	done   chan struct{}

	task *Task
	err  error
}

// Subscribe starts watching taskID in the background and returns immediately.
// The watch inherits ctx, so canceling ctx settles the subscription the same
// way Cancel does.
func (c *Client) Subscribe(ctx context.Context, taskID string, opts WatchOptions) *Subscription {
	watchCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		taskID: taskID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	async.Go(c.logger, "watch "+taskID, func() {
		defer cancel()
		defer close(s.done)
		s.task, s.err = c.Watch(watchCtx, taskID, opts)
	})
	return s
}

// TaskID returns the watched task's id.
func (s *Subscription) TaskID() string {
	return s.taskID
}

// Cancel aborts the watch. The subscription settles with a cancellation
// error unless it already settled. Safe to call any number of times, from
// any goroutine; calls after settlement are no-ops.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Done is closed once the subscription settles.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until settlement and returns the outcome. Safe to call from
// multiple goroutines; every caller sees the same result.
func (s *Subscription) Wait() (*Task, error) {
	<-s.done
	return s.task, s.err
}
