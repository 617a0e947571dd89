package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cleanbook/internal/ir"
)

// Subscribe keeps the local view in sync with the server until release is
// called or ctx ends.
//
// notify(nil) follows every snapshot that replaced the local view: the
// first one right after subscribing, and one per pushed change. A lost
// connection is retried with backoff, each retry fetching a fresh snapshot.
// When retries are exhausted or the server rejects the credentials, notify
// receives the terminal error and the subscription stops.
//
// release blocks until the subscription goroutine has exited.
func (c *Collection[T]) Subscribe(ctx context.Context, notify func(error)) (release func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.watch(ctx, notify)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (c *Collection[T]) watch(ctx context.Context, notify func(error)) {
	failures := 0
	for {
		err := c.session(ctx, notify, func() { failures = 0 })
		if ctx.Err() != nil {
			return
		}

		failures++
		if isAuthError(err) || failures > c.opts.MaxAttempts {
			c.logger.Error("subscription failed", "error", err, "attempts", failures)
			notify(ir.NewPersistError("subscribe", c.kind, err))
			return
		}

		delay := c.backoff(failures)
		c.logger.Warn("subscription lost, resubscribing",
			"error", err,
			"attempt", failures,
			"backoff", delay,
		)
		if c.opts.Observer != nil {
			c.opts.Observer.Resubscribe(c.kind)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// session runs one subscription until it fails. healthy is called once the
// subscription is confirmed and the first snapshot applied.
func (c *Collection[T]) session(ctx context.Context, notify func(error), healthy func()) error {
	ps := c.client.Subscribe(ctx, c.keys.changes)
	defer ps.Close()

	// A blocked read does not observe ctx; closing the PubSub unblocks it.
	stop := context.AfterFunc(ctx, func() { ps.Close() })
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.keys.changes, err)
	}
	if err := c.refresh(ctx); err != nil {
		return err
	}
	healthy()
	notify(nil)

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			return fmt.Errorf("receive %s: %w", c.keys.changes, err)
		}
		c.logger.Debug("change pushed", "change", msg.Payload)

		if err := c.refresh(ctx); err != nil {
			return err
		}
		notify(nil)
	}
}

func (c *Collection[T]) refresh(ctx context.Context) error {
	records, err := c.fetch(ctx)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", c.kind.Collection(), err)
	}
	c.Replace(records)
	if c.opts.Observer != nil {
		c.opts.Observer.Snapshot(c.kind)
	}
	return nil
}

func (c *Collection[T]) backoff(failures int) time.Duration {
	shift := min(failures-1, 4)
	return c.opts.Backoff << shift
}
