package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"pulse/internal/domain/telemetry"
	"pulse/internal/metrics"
	"pulse/pkg/errors"
)

// Channel is the bounded buffer between producers and the single
// aggregation worker. Submit blocks when the buffer is full, giving
// natural backpressure instead of dropping events.
//
// The channel also carries the pipeline health flag shared by both
// sides: a rejected submission or a failed event clears it, the next
// successfully processed event restores it.
type Channel struct {
	events  chan telemetry.Event
	done    chan struct{}
	once    sync.Once
	healthy atomic.Bool
}

// NewChannel creates a bounded channel with the given capacity.
func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = 1
	}

	c := &Channel{
		events: make(chan telemetry.Event, capacity),
		done:   make(chan struct{}),
	}
	c.healthy.Store(true)

	return c
}

// Submit enqueues the event, blocking while the buffer is full.
// It returns errors.ErrPipelineClosed once Close has been called and
// ctx.Err() if the producer's context is cancelled while waiting.
func (c *Channel) Submit(ctx context.Context, ev telemetry.Event) error {
	select {
	case <-c.done:
		c.reject(ev)
		return errors.ErrPipelineClosed
	default:
	}

	select {
	case c.events <- ev:
		metrics.EventsSubmitted.WithLabelValues(ev.Kind()).Inc()
		return nil
	case <-c.done:
		c.reject(ev)
		return errors.ErrPipelineClosed
	case <-ctx.Done():
		c.reject(ev)
		return ctx.Err()
	}
}

func (c *Channel) reject(ev telemetry.Event) {
	c.healthy.Store(false)
	metrics.EventsRejected.WithLabelValues(ev.Kind()).Inc()
}

// Close stops accepting new events. Safe to call multiple times.
// Events already buffered remain available for the worker to drain.
func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// Events exposes the receive side for the worker.
func (c *Channel) Events() <-chan telemetry.Event {
	return c.events
}

// Done is closed once the channel stops accepting events.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Pending returns the number of buffered events.
func (c *Channel) Pending() int {
	return len(c.events)
}

// Capacity returns the buffer capacity.
func (c *Channel) Capacity() int {
	return cap(c.events)
}

// Healthy reports whether the pipeline has seen a failure since the
// last successfully processed event.
func (c *Channel) Healthy() bool {
	return c.healthy.Load()
}
