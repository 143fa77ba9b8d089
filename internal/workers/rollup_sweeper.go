package workers

import (
	"context"
	"time"

	"pulse/internal/pipeline"
	"pulse/pkg/errors"
)

// yesterdayGrace is how long after midnight the sweeper keeps regenerating
// the previous day, catching facts that landed right at the boundary.
const yesterdayGrace = time.Hour

// RollupSweeperWorker periodically regenerates today's rollups from raw
// facts. The notifier refreshes days as events arrive; the sweeper is the
// convergence backstop for refreshes lost to a crash between fact write and
// rollup completion.
type RollupSweeperWorker struct {
	*BaseWorker
	service pipeline.RollupService
	now     func() time.Time
}

func NewRollupSweeperWorker(service pipeline.RollupService, interval time.Duration, enabled bool) *RollupSweeperWorker {
	return &RollupSweeperWorker{
		BaseWorker: NewBaseWorker("rollup_sweeper", interval, enabled),
		service:    service,
		now:        time.Now,
	}
}

// Run regenerates both rollup kinds for today, and for yesterday while
// still inside the post-midnight grace window.
func (w *RollupSweeperWorker) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			w.RecordError(err, time.Since(start))
		} else {
			w.RecordRun(time.Since(start))
		}
	}()

	now := w.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	days := []time.Time{today}
	if now.Sub(today) < yesterdayGrace {
		days = append(days, today.AddDate(0, 0, -1))
	}

	for _, day := range days {
		if err = w.service.RegenerateToolDaily(ctx, day); err != nil {
			return errors.Wrapf(err, "sweep tool rollups for %s", day.Format("2006-01-02"))
		}
		if err = w.service.RegenerateClientDaily(ctx, day); err != nil {
			return errors.Wrapf(err, "sweep client rollups for %s", day.Format("2006-01-02"))
		}
	}

	return nil
}
