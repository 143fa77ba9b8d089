package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/internal/metrics"
	"pulse/pkg/logger"
)

// Worker is the single consumer of the event channel. All fact writes go
// through it, which is what lets the connection records stay lock-free.
type Worker struct {
	channel  *Channel
	handlers *Handlers

	processed     atomic.Uint64
	failed        atomic.Uint64
	lastProcessed atomic.Int64 // unix nanos
	running       atomic.Bool

	wg sync.WaitGroup
}

func NewWorker(channel *Channel, handlers *Handlers) *Worker {
	return &Worker{
		channel:  channel,
		handlers: handlers,
	}
}

// Start launches the consumer goroutine. The worker runs until the channel
// is closed, then drains whatever is still buffered before exiting.
// Lifecycle is driven by Channel.Close, not by ctx: a cancelled parent
// must not fail the drain, so only the context's values are carried into
// the handlers.
func (w *Worker) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	w.running.Store(true)
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		defer w.running.Store(false)

		logger.Info("Aggregation worker started")
		w.run(ctx)
		logger.Info("Aggregation worker drained and stopped")
	}()
}

// Wait blocks until the consumer goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case ev := <-w.channel.Events():
			w.process(ctx, ev)
		case <-w.channel.Done():
			w.drain(ctx)
			return
		}
	}
}

// drain empties the buffer after close. New submissions are already
// rejected at this point, so the loop terminates.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case ev := <-w.channel.Events():
			w.process(ctx, ev)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, ev telemetry.Event) {
	start := time.Now()
	err := w.apply(ctx, ev)
	metrics.RecordEventProcessed(ev.Kind(), time.Since(start), err)

	w.lastProcessed.Store(time.Now().UnixNano())
	if err != nil {
		w.failed.Add(1)
		w.channel.healthy.Store(false)
		logger.Errorf("Failed to process %s event: %v", ev.Kind(), err)
		return
	}

	w.processed.Add(1)
	w.channel.healthy.Store(true)
}

// apply dispatches one event. A panic in a handler fails only that event.
func (w *Worker) apply(ctx context.Context, ev telemetry.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s event: %v", ev.Kind(), r)
		}
	}()

	switch e := ev.(type) {
	case telemetry.ToolUsageEvent:
		return w.handlers.HandleToolUsage(ctx, e)
	case telemetry.ClientConnectionEvent:
		return w.handlers.HandleClientConnection(ctx, e)
	case telemetry.ClientStatusUpdateEvent:
		return w.handlers.HandleClientStatusUpdate(ctx, e)
	case telemetry.ClientToolUsageIncrementEvent:
		return w.handlers.HandleClientToolUsageIncrement(ctx, e)
	default:
		return fmt.Errorf("unhandled event kind %s", ev.Kind())
	}
}

// Stats snapshots the pipeline health counters.
func (w *Worker) Stats() telemetry.PipelineHealth {
	processed := w.processed.Load()
	failed := w.failed.Load()

	var successRate float64
	if total := processed + failed; total > 0 {
		successRate = float64(processed) / float64(total) * 100
	}

	var last time.Time
	if nanos := w.lastProcessed.Load(); nanos > 0 {
		last = time.Unix(0, nanos).UTC()
	}

	return telemetry.PipelineHealth{
		PendingEvents:   w.channel.Pending(),
		ChannelCapacity: w.channel.Capacity(),
		Processed:       processed,
		Failed:          failed,
		LastProcessedAt: last,
		SuccessRate:     successRate,
		Healthy:         w.running.Load() && w.channel.Healthy(),
	}
}
