package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// Compile-time check
var _ telemetry.ToolUsageRepository = (*ToolUsageRepository)(nil)

// ToolUsageRepository implements telemetry.ToolUsageRepository on ClickHouse.
// The tool_usage table is append-only; every aggregate the read side needs
// is computed in-database.
type ToolUsageRepository struct {
	conn driver.Conn
}

// NewToolUsageRepository creates a new tool usage repository
func NewToolUsageRepository(conn driver.Conn) *ToolUsageRepository {
	return &ToolUsageRepository{conn: conn}
}

// Insert appends a single tool usage fact
func (r *ToolUsageRepository) Insert(ctx context.Context, rec *telemetry.ToolUsageRecord) error {
	query := `
		INSERT INTO tool_usage (
			tool_name, session_id, started_at, finished_at, duration_ms,
			success, error_message, input_bytes, output_bytes,
			ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.conn.Exec(ctx, query,
		rec.ToolName, rec.SessionID, rec.StartedAt, rec.FinishedAt, rec.DurationMs,
		rec.Success, rec.ErrorMessage, rec.InputBytes, rec.OutputBytes,
		rec.IPAddress, rec.UserAgent, rec.CreatedAt,
	)
	return errors.Wrap(err, "insert tool usage")
}

// TotalCount returns the running total of recorded invocations
func (r *ToolUsageRepository) TotalCount(ctx context.Context) (int64, error) {
	var count uint64
	err := r.conn.QueryRow(ctx, `SELECT count() FROM tool_usage`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count tool usage")
	}
	return int64(count), nil
}

// ActiveToolCount returns the number of distinct tools used since the cutoff
func (r *ToolUsageRepository) ActiveToolCount(ctx context.Context, since time.Time) (int64, error) {
	var count uint64
	err := r.conn.QueryRow(ctx,
		`SELECT uniqExact(tool_name) FROM tool_usage WHERE started_at >= ?`, since,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "count active tools")
	}
	return int64(count), nil
}

// DayStats summarizes the facts of a single day
func (r *ToolUsageRepository) DayStats(ctx context.Context, day time.Time) (telemetry.DayStats, error) {
	from, to := dayBounds(day)

	query := `
		SELECT
			count() AS total,
			countIf(success) AS successes,
			uniqExactIf(session_id, session_id != '') AS sessions
		FROM tool_usage
		WHERE started_at >= ? AND started_at < ?`

	var total, successes, sessions uint64
	if err := r.conn.QueryRow(ctx, query, from, to).Scan(&total, &successes, &sessions); err != nil {
		return telemetry.DayStats{}, errors.Wrap(err, "query day stats")
	}

	return telemetry.DayStats{
		TotalCount:     int64(total),
		SuccessCount:   int64(successes),
		UniqueSessions: int64(sessions),
	}, nil
}

// CountsByTool returns per-tool counts with success splits over [from, to)
func (r *ToolUsageRepository) CountsByTool(ctx context.Context, from, to time.Time) ([]telemetry.KeyCount, error) {
	query := `
		SELECT
			tool_name,
			count() AS total,
			countIf(success) AS successes
		FROM tool_usage
		WHERE started_at >= ? AND started_at < ?
		GROUP BY tool_name
		ORDER BY total DESC, tool_name ASC`

	rows, err := r.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "query counts by tool")
	}
	defer rows.Close()

	var counts []telemetry.KeyCount
	for rows.Next() {
		var (
			name              string
			total, successes uint64
		)
		if err := rows.Scan(&name, &total, &successes); err != nil {
			return nil, errors.Wrap(err, "scan tool count")
		}
		counts = append(counts, telemetry.KeyCount{
			Key:          name,
			Count:        int64(total),
			SuccessCount: int64(successes),
		})
	}
	return counts, rows.Err()
}

// DailyAggregates computes one rollup row per tool from one day of facts.
// Tools with no facts for the day yield no row.
func (r *ToolUsageRepository) DailyAggregates(ctx context.Context, day time.Time) ([]telemetry.DailyToolStatistics, error) {
	from, to := dayBounds(day)

	query := `
		SELECT
			tool_name,
			count() AS total,
			countIf(success) AS successes,
			countIf(NOT success) AS failures,
			min(duration_ms) AS min_ms,
			avg(duration_ms) AS avg_ms,
			max(duration_ms) AS max_ms,
			sum(input_bytes) AS input_bytes,
			sum(output_bytes) AS output_bytes,
			uniqExactIf(session_id, session_id != '') AS sessions,
			min(started_at) AS first_used,
			max(started_at) AS last_used
		FROM tool_usage
		WHERE started_at >= ? AND started_at < ?
		GROUP BY tool_name
		ORDER BY tool_name ASC`

	rows, err := r.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "query daily tool aggregates")
	}
	defer rows.Close()

	var stats []telemetry.DailyToolStatistics
	for rows.Next() {
		var (
			name                  string
			total, succ, failed   uint64
			minMs, maxMs          int64
			avgMs                 float64
			inBytes, outBytes     int64
			sessions              uint64
			firstUsed, lastUsed   time.Time
		)
		if err := rows.Scan(
			&name, &total, &succ, &failed,
			&minMs, &avgMs, &maxMs,
			&inBytes, &outBytes, &sessions,
			&firstUsed, &lastUsed,
		); err != nil {
			return nil, errors.Wrap(err, "scan daily tool aggregate")
		}

		stats = append(stats, telemetry.DailyToolStatistics{
			Date:             from,
			ToolName:         name,
			TotalCount:       int64(total),
			SuccessCount:     int64(succ),
			FailureCount:     int64(failed),
			MinDurationMs:    minMs,
			AvgDurationMs:    avgMs,
			MaxDurationMs:    maxMs,
			TotalInputBytes:  inBytes,
			TotalOutputBytes: outBytes,
			UniqueSessions:   int64(sessions),
			FirstUsedAt:      firstUsed,
			LastUsedAt:       lastUsed,
		})
	}
	return stats, rows.Err()
}

// HeatmapPoints returns the non-zero (date, hour) buckets in [from, to)
func (r *ToolUsageRepository) HeatmapPoints(ctx context.Context, from, to time.Time) ([]telemetry.HeatmapPoint, error) {
	query := `
		SELECT
			toDate(started_at) AS day,
			toHour(started_at) AS hour,
			count() AS total
		FROM tool_usage
		WHERE started_at >= ? AND started_at < ?
		GROUP BY day, hour
		ORDER BY day, hour`

	rows, err := r.conn.Query(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "query heatmap points")
	}
	defer rows.Close()

	var points []telemetry.HeatmapPoint
	for rows.Next() {
		var (
			day   time.Time
			hour  uint8
			total uint64
		)
		if err := rows.Scan(&day, &hour, &total); err != nil {
			return nil, errors.Wrap(err, "scan heatmap point")
		}
		points = append(points, telemetry.HeatmapPoint{
			Date:  day,
			Hour:  int(hour),
			Count: int64(total),
		})
	}
	return points, rows.Err()
}

// Recent returns the latest invocations, newest first
func (r *ToolUsageRepository) Recent(ctx context.Context, limit int) ([]telemetry.ToolUsageRecord, error) {
	var records []telemetry.ToolUsageRecord

	query := `
		SELECT
			tool_name, session_id, started_at, finished_at, duration_ms,
			success, error_message, input_bytes, output_bytes,
			ip_address, user_agent, created_at
		FROM tool_usage
		ORDER BY started_at DESC
		LIMIT ?`

	if err := r.conn.Select(ctx, &records, query, limit); err != nil {
		return nil, errors.Wrap(err, "query recent tool usage")
	}
	return records, nil
}

// dayBounds returns [00:00, next day 00:00) in UTC for the given day
func dayBounds(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}
