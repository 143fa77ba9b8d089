package telemetry

import (
	"time"
)

// Read models served by the analytics service. All of them are derived,
// never stored.

// KeyCount is a usage count per key with its success split, used for
// distributions and rankings.
type KeyCount struct {
	Key          string `json:"key"`
	Count        int64  `json:"count"`
	SuccessCount int64  `json:"successCount"`
}

// DayStats summarizes one day of raw facts for a fact kind.
type DayStats struct {
	TotalCount     int64 `json:"totalCount"`
	SuccessCount   int64 `json:"successCount"`
	UniqueSessions int64 `json:"uniqueSessions"`
}

// HeatmapPoint is one non-zero (date, hour) bucket from raw facts.
type HeatmapPoint struct {
	Date  time.Time `json:"date"`
	Hour  int       `json:"hour"`
	Count int64     `json:"count"`
}

// Heatmap is a days x 24 grid. Cells[0] is today, Cells[1] yesterday, and
// so on; every cell defaults to zero.
type Heatmap struct {
	Days  int       `json:"days"`
	Since time.Time `json:"since"`
	Cells [][]int64 `json:"cells"`
}

// ToolOverview is the tool-usage headline card.
type ToolOverview struct {
	TotalUsage       int64   `json:"totalUsage"`
	ActiveTools      int64   `json:"activeTools"` // distinct tools, trailing 30 days
	SuccessRate7d    float64 `json:"successRate7d"`
	AvgDurationMs7d  float64 `json:"avgDurationMs7d"`
	TodayUsage       int64   `json:"todayUsage"`
	TodaySuccessRate float64 `json:"todaySuccessRate"`
	TodaySessions    int64   `json:"todaySessions"`
	MostUsedTool     string  `json:"mostUsedTool"`
}

// ClientOverview is the client-connection headline card.
type ClientOverview struct {
	TotalConnections  int64   `json:"totalConnections"`
	ActiveClients     int64   `json:"activeClients"` // distinct clients, trailing 30 days
	SuccessRate7d     float64 `json:"successRate7d"`
	AvgDurationSec7d  float64 `json:"avgDurationSec7d"`
	TodayConnections  int64   `json:"todayConnections"`
	TodaySuccessRate  float64 `json:"todaySuccessRate"`
	MostActiveClient  string  `json:"mostActiveClient"`
}

// TrendPoint is one day of the tool-usage trend series.
type TrendPoint struct {
	Date          time.Time `json:"date"`
	TotalUsage    int64     `json:"totalUsage"`
	SuccessCount  int64     `json:"successCount"`
	FailureCount  int64     `json:"failureCount"`
	SuccessRate   float64   `json:"successRate"`
	AvgDurationMs float64   `json:"avgDurationMs"`
}

// ClientTrendPoint is one day of the client-connection trend series.
type ClientTrendPoint struct {
	Date               time.Time `json:"date"`
	TotalConnections   int64     `json:"totalConnections"`
	FailedConnections  int64     `json:"failedConnections"`
	SuccessRate        float64   `json:"successRate"`
	AvgDurationSeconds float64   `json:"avgDurationSeconds"`
	TotalToolUsage     int64     `json:"totalToolUsage"`
}

// DistributionSlice is a key's share of total usage over a window.
type DistributionSlice struct {
	Key        string  `json:"key"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// SuccessRateEntry is the per-key success split over a window.
type SuccessRateEntry struct {
	Key          string  `json:"key"`
	TotalCount   int64   `json:"totalCount"`
	SuccessCount int64   `json:"successCount"`
	FailureCount int64   `json:"failureCount"`
	SuccessRate  float64 `json:"successRate"`
}

// PerformanceEntry is the per-key latency profile over a window. The median
// is taken over the per-day average durations within the window.
type PerformanceEntry struct {
	Key              string  `json:"key"`
	MinDurationMs    int64   `json:"minDurationMs"`
	AvgDurationMs    float64 `json:"avgDurationMs"`
	MedianDurationMs float64 `json:"medianDurationMs"`
	MaxDurationMs    int64   `json:"maxDurationMs"`
}

// ClientPerformanceEntry is the per-client connection-duration profile
// over a window, in seconds. Median as in PerformanceEntry.
type ClientPerformanceEntry struct {
	Key                   string  `json:"key"`
	MinDurationSeconds    int64   `json:"minDurationSeconds"`
	AvgDurationSeconds    float64 `json:"avgDurationSeconds"`
	MedianDurationSeconds float64 `json:"medianDurationSeconds"`
	MaxDurationSeconds    int64   `json:"maxDurationSeconds"`
}

// RankingEntry is one row of a top-N ranking by usage count.
type RankingEntry struct {
	Rank        int     `json:"rank"`
	Key         string  `json:"key"`
	Count       int64   `json:"count"`
	SuccessRate float64 `json:"successRate"`
}

// PipelineHealth is the introspection snapshot of the ingestion pipeline.
type PipelineHealth struct {
	PendingEvents   int       `json:"pendingEvents"`
	ChannelCapacity int       `json:"channelCapacity"`
	Processed       uint64    `json:"processed"`
	Failed          uint64    `json:"failed"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
	SuccessRate     float64   `json:"successRate"`
	Healthy         bool      `json:"healthy"`
}

// ToolDashboard bundles the tool-usage read models a dashboard needs.
type ToolDashboard struct {
	Overview     ToolOverview        `json:"overview"`
	Trend        []TrendPoint        `json:"trend"`
	Distribution []DistributionSlice `json:"distribution"`
	Ranking      []RankingEntry      `json:"ranking"`
}

// ClientDashboard bundles the client-connection read models.
type ClientDashboard struct {
	Overview     ClientOverview      `json:"overview"`
	Trend        []ClientTrendPoint  `json:"trend"`
	Distribution []DistributionSlice `json:"distribution"`
	Ranking      []RankingEntry      `json:"ranking"`
}
