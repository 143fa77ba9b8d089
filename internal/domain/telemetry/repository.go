package telemetry

import (
	"context"
	"time"
)

// ToolUsageRepository persists and aggregates tool-usage facts.
// The store is append-only: Insert is the only write.
type ToolUsageRepository interface {
	Insert(ctx context.Context, rec *ToolUsageRecord) error

	TotalCount(ctx context.Context) (int64, error)
	ActiveToolCount(ctx context.Context, since time.Time) (int64, error)
	DayStats(ctx context.Context, day time.Time) (DayStats, error)

	// CountsByTool returns per-tool usage counts with success splits for
	// facts in [from, to), ordered by count descending then tool name.
	CountsByTool(ctx context.Context, from, to time.Time) ([]KeyCount, error)

	// DailyAggregates computes one rollup row per tool from the facts of
	// a single day. Tools with no facts yield no row.
	DailyAggregates(ctx context.Context, day time.Time) ([]DailyToolStatistics, error)

	// HeatmapPoints returns non-zero (date, hour) buckets in [from, to).
	HeatmapPoints(ctx context.Context, from, to time.Time) ([]HeatmapPoint, error)

	Recent(ctx context.Context, limit int) ([]ToolUsageRecord, error)
}

// ClientConnectionRepository persists client-connection facts. Records are
// mutable but only ever written by the single pipeline consumer.
type ClientConnectionRepository interface {
	Insert(ctx context.Context, rec *ClientConnectionRecord) error

	// GetBySession returns errors.ErrNotFound when the session is unknown.
	GetBySession(ctx context.Context, sessionID string) (*ClientConnectionRecord, error)

	UpdateStatus(ctx context.Context, sessionID string, status ConnectionStatus, disconnectedAt time.Time, durationSeconds int64, errorMessage string) error

	// IncrementToolUsage bumps the counter for a session whose record has a
	// non-empty user agent. Returns false when nothing matched (unknown
	// session or agentless record); both are benign no-ops.
	IncrementToolUsage(ctx context.Context, sessionID string) (bool, error)

	TotalCount(ctx context.Context) (int64, error)
	ActiveClientCount(ctx context.Context, since time.Time) (int64, error)
	DayStats(ctx context.Context, day time.Time) (DayStats, error)
	CountsByClient(ctx context.Context, from, to time.Time) ([]KeyCount, error)
	DailyAggregates(ctx context.Context, day time.Time) ([]DailyClientStatistics, error)

	// HeatmapPoints returns non-zero (date, hour) buckets over connect
	// times in [from, to).
	HeatmapPoints(ctx context.Context, from, to time.Time) ([]HeatmapPoint, error)

	Recent(ctx context.Context, limit int) ([]ClientConnectionRecord, error)
}

// DailyStatsRepository stores the derived daily rollups. Upserts overwrite
// every aggregate column so regeneration is idempotent.
type DailyStatsRepository interface {
	UpsertToolStats(ctx context.Context, rows []DailyToolStatistics) error
	UpsertClientStats(ctx context.Context, rows []DailyClientStatistics) error

	// Ranges are inclusive of from and to, matched on the rollup date.
	ToolStatsRange(ctx context.Context, from, to time.Time) ([]DailyToolStatistics, error)
	ClientStatsRange(ctx context.Context, from, to time.Time) ([]DailyClientStatistics, error)
}
