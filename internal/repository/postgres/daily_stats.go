package postgres

import (
	"context"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// Compile-time check
var _ telemetry.DailyStatsRepository = (*DailyStatsRepository)(nil)

// DailyStatsRepository stores the derived daily rollups in PostgreSQL.
// Upserts overwrite every aggregate column for the key, which makes
// regeneration idempotent: re-running a day over unchanged facts writes
// identical rows.
type DailyStatsRepository struct {
	db DBTX
}

// NewDailyStatsRepository creates a new daily stats repository
func NewDailyStatsRepository(db DBTX) *DailyStatsRepository {
	return &DailyStatsRepository{db: db}
}

// UpsertToolStats writes one rollup row per (date, tool name)
func (r *DailyStatsRepository) UpsertToolStats(ctx context.Context, rows []telemetry.DailyToolStatistics) error {
	query := `
		INSERT INTO daily_tool_statistics (
			stat_date, tool_name, total_count, success_count, failure_count,
			min_duration_ms, avg_duration_ms, max_duration_ms,
			total_input_bytes, total_output_bytes, unique_sessions,
			first_used_at, last_used_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (stat_date, tool_name) DO UPDATE SET
			total_count = EXCLUDED.total_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			min_duration_ms = EXCLUDED.min_duration_ms,
			avg_duration_ms = EXCLUDED.avg_duration_ms,
			max_duration_ms = EXCLUDED.max_duration_ms,
			total_input_bytes = EXCLUDED.total_input_bytes,
			total_output_bytes = EXCLUDED.total_output_bytes,
			unique_sessions = EXCLUDED.unique_sessions,
			first_used_at = EXCLUDED.first_used_at,
			last_used_at = EXCLUDED.last_used_at,
			updated_at = EXCLUDED.updated_at`

	for i := range rows {
		row := &rows[i]
		_, err := r.db.ExecContext(ctx, query,
			row.Date, row.ToolName, row.TotalCount, row.SuccessCount, row.FailureCount,
			row.MinDurationMs, row.AvgDurationMs, row.MaxDurationMs,
			row.TotalInputBytes, row.TotalOutputBytes, row.UniqueSessions,
			row.FirstUsedAt, row.LastUsedAt, row.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert tool stats for %s", row.ToolName)
		}
	}
	return nil
}

// UpsertClientStats writes one rollup row per (date, client name, version)
func (r *DailyStatsRepository) UpsertClientStats(ctx context.Context, rows []telemetry.DailyClientStatistics) error {
	query := `
		INSERT INTO daily_client_statistics (
			stat_date, client_name, client_version,
			total_connections, failed_connections,
			min_duration_seconds, avg_duration_seconds, max_duration_seconds,
			total_tool_usage, avg_tool_usage,
			first_connected_at, last_connected_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (stat_date, client_name, client_version) DO UPDATE SET
			total_connections = EXCLUDED.total_connections,
			failed_connections = EXCLUDED.failed_connections,
			min_duration_seconds = EXCLUDED.min_duration_seconds,
			avg_duration_seconds = EXCLUDED.avg_duration_seconds,
			max_duration_seconds = EXCLUDED.max_duration_seconds,
			total_tool_usage = EXCLUDED.total_tool_usage,
			avg_tool_usage = EXCLUDED.avg_tool_usage,
			first_connected_at = EXCLUDED.first_connected_at,
			last_connected_at = EXCLUDED.last_connected_at,
			updated_at = EXCLUDED.updated_at`

	for i := range rows {
		row := &rows[i]
		_, err := r.db.ExecContext(ctx, query,
			row.Date, row.ClientName, row.ClientVersion,
			row.TotalConnections, row.FailedConnections,
			row.MinDurationSeconds, row.AvgDurationSeconds, row.MaxDurationSeconds,
			row.TotalToolUsage, row.AvgToolUsage,
			row.FirstConnectedAt, row.LastConnectedAt, row.UpdatedAt,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert client stats for %s %s", row.ClientName, row.ClientVersion)
		}
	}
	return nil
}

// ToolStatsRange returns tool rollup rows with stat_date in [from, to]
func (r *DailyStatsRepository) ToolStatsRange(ctx context.Context, from, to time.Time) ([]telemetry.DailyToolStatistics, error) {
	var rows []telemetry.DailyToolStatistics

	query := `
		SELECT * FROM daily_tool_statistics
		WHERE stat_date >= $1 AND stat_date <= $2
		ORDER BY stat_date ASC, tool_name ASC`

	err := r.db.SelectContext(ctx, &rows, query, from, to)
	return rows, errors.Wrap(err, "query tool stats range")
}

// ClientStatsRange returns client rollup rows with stat_date in [from, to]
func (r *DailyStatsRepository) ClientStatsRange(ctx context.Context, from, to time.Time) ([]telemetry.DailyClientStatistics, error) {
	var rows []telemetry.DailyClientStatistics

	query := `
		SELECT * FROM daily_client_statistics
		WHERE stat_date >= $1 AND stat_date <= $2
		ORDER BY stat_date ASC, client_name ASC, client_version ASC`

	err := r.db.SelectContext(ctx, &rows, query, from, to)
	return rows, errors.Wrap(err, "query client stats range")
}
