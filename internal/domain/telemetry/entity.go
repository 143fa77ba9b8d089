package telemetry

import (
	"time"
)

// ConnectionStatus is the lifecycle state of a client connection
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusFailed       ConnectionStatus = "failed"
	StatusTimeout      ConnectionStatus = "timeout"
)

// Valid reports whether s is one of the known statuses
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusConnected, StatusDisconnected, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// ToolUsageRecord is the append-only fact for a single tool invocation.
// One row per invocation, never updated or deleted.
type ToolUsageRecord struct {
	ToolName     string    `ch:"tool_name"`
	SessionID    string    `ch:"session_id"`
	StartedAt    time.Time `ch:"started_at"`
	FinishedAt   time.Time `ch:"finished_at"`
	DurationMs   int64     `ch:"duration_ms"`
	Success      bool      `ch:"success"`
	ErrorMessage string    `ch:"error_message"`
	InputBytes   int64     `ch:"input_bytes"`
	OutputBytes  int64     `ch:"output_bytes"`
	IPAddress    string    `ch:"ip_address"`
	UserAgent    string    `ch:"user_agent"`
	CreatedAt    time.Time `ch:"created_at"`
}

// ClientConnectionRecord is the one mutable fact: created on connection,
// updated in place by status and tool-usage events carrying its session id.
// Only the single pipeline consumer writes it, so no locking is needed.
type ClientConnectionRecord struct {
	SessionID       string           `db:"session_id"`
	ClientName      string           `db:"client_name"`
	ClientVersion   string           `db:"client_version"`
	ClientTitle     string           `db:"client_title"`
	IPAddress       string           `db:"ip_address"`
	UserAgent       string           `db:"user_agent"`
	Status          ConnectionStatus `db:"status"`
	ConnectedAt     time.Time        `db:"connected_at"`
	DisconnectedAt  *time.Time       `db:"disconnected_at"`
	DurationSeconds *int64           `db:"duration_seconds"`
	ToolUsageCount  int64            `db:"tool_usage_count"`
	ErrorMessage    string           `db:"error_message"`
	CreatedAt       time.Time        `db:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at"`
}

// DailyToolStatistics is the derived rollup keyed by (date, tool name).
// Every upsert overwrites all aggregate columns; rows are recomputed
// wholesale from raw facts, never accumulated.
type DailyToolStatistics struct {
	Date             time.Time `db:"stat_date"`
	ToolName         string    `db:"tool_name"`
	TotalCount       int64     `db:"total_count"`
	SuccessCount     int64     `db:"success_count"`
	FailureCount     int64     `db:"failure_count"`
	MinDurationMs    int64     `db:"min_duration_ms"`
	AvgDurationMs    float64   `db:"avg_duration_ms"`
	MaxDurationMs    int64     `db:"max_duration_ms"`
	TotalInputBytes  int64     `db:"total_input_bytes"`
	TotalOutputBytes int64     `db:"total_output_bytes"`
	UniqueSessions   int64     `db:"unique_sessions"`
	FirstUsedAt      time.Time `db:"first_used_at"`
	LastUsedAt       time.Time `db:"last_used_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// DailyClientStatistics is the derived rollup keyed by
// (date, client name, client version).
type DailyClientStatistics struct {
	Date               time.Time `db:"stat_date"`
	ClientName         string    `db:"client_name"`
	ClientVersion      string    `db:"client_version"`
	TotalConnections   int64     `db:"total_connections"`
	FailedConnections  int64     `db:"failed_connections"`
	MinDurationSeconds int64     `db:"min_duration_seconds"`
	AvgDurationSeconds float64   `db:"avg_duration_seconds"`
	MaxDurationSeconds int64     `db:"max_duration_seconds"`
	TotalToolUsage     int64     `db:"total_tool_usage"`
	AvgToolUsage       float64   `db:"avg_tool_usage"`
	FirstConnectedAt   time.Time `db:"first_connected_at"`
	LastConnectedAt    time.Time `db:"last_connected_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}
