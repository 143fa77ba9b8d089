package pipeline

import (
	"context"
	"sync"
	"time"

	"pulse/pkg/logger"
)

// RollupService regenerates one day of rollups from the raw facts.
type RollupService interface {
	RegenerateToolDaily(ctx context.Context, day time.Time) error
	RegenerateClientDaily(ctx context.Context, day time.Time) error
}

// Notifier coalesces dirty days and regenerates their rollups on a single
// background goroutine. Marking the same day many times while a flush is in
// flight costs one regeneration, not many, and a regeneration failure keeps
// the day dirty for the next flush.
type Notifier struct {
	service RollupService

	mu         sync.Mutex
	toolDays   map[time.Time]struct{}
	clientDays map[time.Time]struct{}

	kick chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewNotifier(service RollupService) *Notifier {
	return &Notifier{
		service:    service,
		toolDays:   make(map[time.Time]struct{}),
		clientDays: make(map[time.Time]struct{}),
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

// Start launches the flush goroutine. Lifecycle is driven by Stop, not by
// ctx: a cancelled parent must not abort the final flush, so only the
// context's values are carried into the regenerate calls.
func (n *Notifier) Start(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		for {
			select {
			case <-n.kick:
				n.flush(ctx)
			case <-n.stop:
				// Final flush for days marked after the last kick.
				n.flush(ctx)
				return
			}
		}
	}()
}

// Stop flushes any remaining dirty days and waits for the goroutine.
func (n *Notifier) Stop() {
	n.once.Do(func() {
		close(n.stop)
	})
	n.wg.Wait()
}

// MarkToolDay marks a day's tool rollups as stale.
func (n *Notifier) MarkToolDay(day time.Time) {
	n.mu.Lock()
	n.toolDays[midnightUTC(day)] = struct{}{}
	n.mu.Unlock()

	n.wake()
}

// MarkClientDay marks a day's client rollups as stale.
func (n *Notifier) MarkClientDay(day time.Time) {
	n.mu.Lock()
	n.clientDays[midnightUTC(day)] = struct{}{}
	n.mu.Unlock()

	n.wake()
}

func (n *Notifier) wake() {
	select {
	case n.kick <- struct{}{}:
	default:
	}
}

func (n *Notifier) flush(ctx context.Context) {
	n.mu.Lock()
	toolDays := n.toolDays
	clientDays := n.clientDays
	n.toolDays = make(map[time.Time]struct{})
	n.clientDays = make(map[time.Time]struct{})
	n.mu.Unlock()

	for day := range toolDays {
		if err := n.service.RegenerateToolDaily(ctx, day); err != nil {
			logger.Errorf("Tool rollup failed for %s: %v", day.Format("2006-01-02"), err)
			n.MarkToolDay(day)
		}
	}

	for day := range clientDays {
		if err := n.service.RegenerateClientDaily(ctx, day); err != nil {
			logger.Errorf("Client rollup failed for %s: %v", day.Format("2006-01-02"), err)
			n.MarkClientDay(day)
		}
	}
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
