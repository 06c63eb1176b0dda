// Package shutdown coordinates a clean stop of every long-running daemon task.
// A single one-shot cancellation flag is broadcast to all tasks; each task
// races its work against it, and the coordinator waits for every task to
// return before the process exits.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrInterrupted is the cancellation cause when a process signal arrives.
var ErrInterrupted = errors.New("interrupted")

// ErrTaskExited is reported when a task returns before shutdown was requested.
var ErrTaskExited = errors.New("task exited unexpectedly")

// Coordinator owns the shutdown flag and the set of running tasks.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	group  errgroup.Group
	log    *slog.Logger
}

// New creates a Coordinator whose flag flips when parent is done or Shutdown
// is called. A nil logger uses slog.Default().
func New(parent context.Context, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancelCause(parent)
	return &Coordinator{
		ctx:    ctx,
		cancel: cancel,
		log:    logger.With("component", "shutdown"),
	}
}

// Context returns the context every task should observe.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Done returns a channel closed once shutdown has been requested.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Cancelled reports whether shutdown has been requested. Repeated calls after
// the flag flips keep returning true.
func (c *Coordinator) Cancelled() bool {
	return c.ctx.Err() != nil
}

// Cause returns why shutdown was requested, or nil while still running.
func (c *Coordinator) Cause() error {
	return context.Cause(c.ctx)
}

// Shutdown flips the flag. Only the first cause is kept.
func (c *Coordinator) Shutdown(cause error) {
	c.cancel(cause)
}

// ListenForSignals requests shutdown the first time one of sigs arrives
// (os.Interrupt when none are given). The returned function detaches the
// handler; it is safe to call more than once.
func (c *Coordinator) ListenForSignals(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)

	detached := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			c.log.Info("signal received, shutting down", "signal", sig.String())
			c.Shutdown(fmt.Errorf("%w: %s", ErrInterrupted, sig))
		case <-c.ctx.Done():
		case <-detached:
		}
		signal.Stop(sigCh)
	}()

	var once sync.Once
	return func() { once.Do(func() { close(detached) }) }
}

// Go runs fn as a named task. A task that fails, or returns while shutdown has
// not been requested, flips the flag for every other task.
func (c *Coordinator) Go(name string, fn func(ctx context.Context) error) {
	c.group.Go(func() error {
		err := fn(c.ctx)
		switch {
		case err != nil && c.Cancelled() && errors.Is(err, context.Canceled):
			err = nil
		case err == nil && !c.Cancelled():
			err = ErrTaskExited
		}
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			c.log.Error("task failed", "task", name, "error", err)
			c.Shutdown(err)
			return err
		}
		c.log.Debug("task stopped", "task", name)
		return nil
	})
}

// Wait blocks until every task has returned and reports the first task error.
// An interrupt-driven shutdown with no failing task returns nil.
func (c *Coordinator) Wait() error {
	err := c.group.Wait()
	c.cancel(nil)
	return err
}
