package postgres

import (
	"context"
	"database/sql"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// Compile-time check
var _ telemetry.ClientConnectionRepository = (*ClientConnectionRepository)(nil)

// ClientConnectionRepository implements telemetry.ClientConnectionRepository
// using sqlx. Connection records are the one mutable fact in the system;
// all writes come from the single pipeline consumer.
type ClientConnectionRepository struct {
	db DBTX
}

// NewClientConnectionRepository creates a new client connection repository
func NewClientConnectionRepository(db DBTX) *ClientConnectionRepository {
	return &ClientConnectionRepository{db: db}
}

// Insert creates a new connection record
func (r *ClientConnectionRepository) Insert(ctx context.Context, rec *telemetry.ClientConnectionRecord) error {
	query := `
		INSERT INTO client_connections (
			session_id, client_name, client_version, client_title,
			ip_address, user_agent, status, connected_at,
			disconnected_at, duration_seconds, tool_usage_count,
			error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID, rec.ClientName, rec.ClientVersion, rec.ClientTitle,
		rec.IPAddress, rec.UserAgent, rec.Status, rec.ConnectedAt,
		rec.DisconnectedAt, rec.DurationSeconds, rec.ToolUsageCount,
		rec.ErrorMessage, rec.CreatedAt, rec.UpdatedAt,
	)
	return errors.Wrap(err, "insert client connection")
}

// GetBySession retrieves a connection record by its session id
func (r *ClientConnectionRepository) GetBySession(ctx context.Context, sessionID string) (*telemetry.ClientConnectionRecord, error) {
	var rec telemetry.ClientConnectionRecord

	query := `SELECT * FROM client_connections WHERE session_id = $1`

	err := r.db.GetContext(ctx, &rec, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get client connection")
	}

	return &rec, nil
}

// UpdateStatus transitions a connection to a terminal (or updated) status
func (r *ClientConnectionRepository) UpdateStatus(ctx context.Context, sessionID string, status telemetry.ConnectionStatus, disconnectedAt time.Time, durationSeconds int64, errorMessage string) error {
	query := `
		UPDATE client_connections
		SET status = $2,
			disconnected_at = $3,
			duration_seconds = $4,
			error_message = $5,
			updated_at = NOW()
		WHERE session_id = $1`

	_, err := r.db.ExecContext(ctx, query, sessionID, status, disconnectedAt, durationSeconds, errorMessage)
	return errors.Wrap(err, "update client connection status")
}

// IncrementToolUsage bumps the tool-usage counter of a session. Records
// without a recorded user agent are deliberately excluded from usage
// statistics, so the gate lives in the statement itself.
func (r *ClientConnectionRepository) IncrementToolUsage(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE client_connections
		SET tool_usage_count = tool_usage_count + 1,
			updated_at = NOW()
		WHERE session_id = $1 AND user_agent <> ''`

	res, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return false, errors.Wrap(err, "increment tool usage")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "increment tool usage rows affected")
	}
	return affected > 0, nil
}

// TotalCount returns the running total of connections
func (r *ClientConnectionRepository) TotalCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM client_connections`)
	return count, errors.Wrap(err, "count client connections")
}

// ActiveClientCount returns the number of distinct clients seen since the cutoff
func (r *ClientConnectionRepository) ActiveClientCount(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(DISTINCT client_name) FROM client_connections WHERE connected_at >= $1`, since)
	return count, errors.Wrap(err, "count active clients")
}

// DayStats summarizes the connections of a single day. A connection counts
// as successful unless it ended in failed or timeout.
func (r *ClientConnectionRepository) DayStats(ctx context.Context, day time.Time) (telemetry.DayStats, error) {
	from, to := dayBounds(day)

	var stats telemetry.DayStats
	query := `
		SELECT
			COUNT(*) AS total_count,
			COUNT(*) FILTER (WHERE status NOT IN ('failed', 'timeout')) AS success_count,
			COUNT(DISTINCT session_id) AS unique_sessions
		FROM client_connections
		WHERE connected_at >= $1 AND connected_at < $2`

	err := r.db.GetContext(ctx, &stats, query, from, to)
	return stats, errors.Wrap(err, "query client day stats")
}

// CountsByClient returns per-client counts with success splits over [from, to)
func (r *ClientConnectionRepository) CountsByClient(ctx context.Context, from, to time.Time) ([]telemetry.KeyCount, error) {
	var counts []telemetry.KeyCount

	query := `
		SELECT
			client_name AS key,
			COUNT(*) AS count,
			COUNT(*) FILTER (WHERE status NOT IN ('failed', 'timeout')) AS success_count
		FROM client_connections
		WHERE connected_at >= $1 AND connected_at < $2
		GROUP BY client_name
		ORDER BY count DESC, client_name ASC`

	err := r.db.SelectContext(ctx, &counts, query, from, to)
	return counts, errors.Wrap(err, "query counts by client")
}

// DailyAggregates computes one rollup row per (client name, version) from
// one day of connections. Duration aggregates consider only connections
// that have a recorded duration.
func (r *ClientConnectionRepository) DailyAggregates(ctx context.Context, day time.Time) ([]telemetry.DailyClientStatistics, error) {
	from, to := dayBounds(day)

	var stats []telemetry.DailyClientStatistics

	query := `
		SELECT
			$1::timestamptz AS stat_date,
			client_name,
			client_version,
			COUNT(*) AS total_connections,
			COUNT(*) FILTER (WHERE status IN ('failed', 'timeout')) AS failed_connections,
			COALESCE(MIN(duration_seconds), 0) AS min_duration_seconds,
			COALESCE(AVG(duration_seconds), 0) AS avg_duration_seconds,
			COALESCE(MAX(duration_seconds), 0) AS max_duration_seconds,
			COALESCE(SUM(tool_usage_count), 0) AS total_tool_usage,
			COALESCE(AVG(tool_usage_count), 0) AS avg_tool_usage,
			MIN(connected_at) AS first_connected_at,
			MAX(connected_at) AS last_connected_at,
			NOW() AS updated_at
		FROM client_connections
		WHERE connected_at >= $1 AND connected_at < $2
		GROUP BY client_name, client_version
		ORDER BY client_name, client_version`

	err := r.db.SelectContext(ctx, &stats, query, from, to)
	return stats, errors.Wrap(err, "query daily client aggregates")
}

// HeatmapPoints returns the non-zero (date, hour) buckets over connect
// times in [from, to)
func (r *ClientConnectionRepository) HeatmapPoints(ctx context.Context, from, to time.Time) ([]telemetry.HeatmapPoint, error) {
	var points []telemetry.HeatmapPoint

	query := `
		SELECT
			date_trunc('day', connected_at) AS date,
			EXTRACT(HOUR FROM connected_at)::int AS hour,
			COUNT(*) AS count
		FROM client_connections
		WHERE connected_at >= $1 AND connected_at < $2
		GROUP BY date, hour
		ORDER BY date, hour`

	err := r.db.SelectContext(ctx, &points, query, from, to)
	return points, errors.Wrap(err, "query connection heatmap points")
}

// Recent returns the latest connections, newest first
func (r *ClientConnectionRepository) Recent(ctx context.Context, limit int) ([]telemetry.ClientConnectionRecord, error) {
	var records []telemetry.ClientConnectionRecord

	query := `
		SELECT * FROM client_connections
		ORDER BY connected_at DESC
		LIMIT $1`

	err := r.db.SelectContext(ctx, &records, query, limit)
	return records, errors.Wrap(err, "query recent client connections")
}

// dayBounds returns [00:00, next day 00:00) in UTC for the given day
func dayBounds(day time.Time) (time.Time, time.Time) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 0, 1)
}
