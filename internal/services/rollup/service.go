package rollup

import (
	"context"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/internal/metrics"
	"pulse/pkg/errors"
	"pulse/pkg/logger"
)

// Service recomputes daily rollups from the raw facts. Regeneration is a
// full overwrite of the day's rows, so replaying it any number of times
// converges to the same result.
type Service struct {
	toolUsage   telemetry.ToolUsageRepository
	connections telemetry.ClientConnectionRepository
	dailyStats  telemetry.DailyStatsRepository
	now         func() time.Time
}

func NewService(
	toolUsage telemetry.ToolUsageRepository,
	connections telemetry.ClientConnectionRepository,
	dailyStats telemetry.DailyStatsRepository,
) *Service {
	return &Service{
		toolUsage:   toolUsage,
		connections: connections,
		dailyStats:  dailyStats,
		now:         time.Now,
	}
}

// RegenerateToolDaily rebuilds the per-tool rollups for one day. A day with
// no facts produces no rows and existing rows are left untouched.
func (s *Service) RegenerateToolDaily(ctx context.Context, day time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.RecordRollupRun("tool", time.Since(start), err) }()

	rows, err := s.toolUsage.DailyAggregates(ctx, day)
	if err != nil {
		return errors.Wrapf(err, "aggregate tool facts for %s", day.Format("2006-01-02"))
	}

	if len(rows) == 0 {
		return nil
	}

	updatedAt := s.now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = updatedAt
	}

	if err = s.dailyStats.UpsertToolStats(ctx, rows); err != nil {
		return errors.Wrapf(err, "upsert tool rollups for %s", day.Format("2006-01-02"))
	}

	logger.Debugf("Regenerated %d tool rollup rows for %s", len(rows), day.Format("2006-01-02"))

	return nil
}

// RegenerateClientDaily rebuilds the per-client rollups for one day.
func (s *Service) RegenerateClientDaily(ctx context.Context, day time.Time) (err error) {
	start := time.Now()
	defer func() { metrics.RecordRollupRun("client", time.Since(start), err) }()

	rows, err := s.connections.DailyAggregates(ctx, day)
	if err != nil {
		return errors.Wrapf(err, "aggregate client facts for %s", day.Format("2006-01-02"))
	}

	if len(rows) == 0 {
		return nil
	}

	updatedAt := s.now().UTC()
	for i := range rows {
		rows[i].UpdatedAt = updatedAt
	}

	if err = s.dailyStats.UpsertClientStats(ctx, rows); err != nil {
		return errors.Wrapf(err, "upsert client rollups for %s", day.Format("2006-01-02"))
	}

	logger.Debugf("Regenerated %d client rollup rows for %s", len(rows), day.Format("2006-01-02"))

	return nil
}
