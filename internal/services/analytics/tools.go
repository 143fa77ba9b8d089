package analytics

import (
	"context"
	"sort"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// ToolOverview builds the tool-usage headline card: lifetime and today's
// numbers from raw facts, the trailing 7-day rates from rollups.
func (s *Service) ToolOverview(ctx context.Context) (telemetry.ToolOverview, error) {
	var overview telemetry.ToolOverview

	total, err := s.toolUsage.TotalCount(ctx)
	if err != nil {
		return overview, errors.Wrap(err, "count tool usage")
	}

	active, err := s.toolUsage.ActiveToolCount(ctx, s.now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return overview, errors.Wrap(err, "count active tools")
	}

	today := s.today()
	todayStats, err := s.toolUsage.DayStats(ctx, today)
	if err != nil {
		return overview, errors.Wrap(err, "today's tool stats")
	}

	rows, err := s.dailyStats.ToolStatsRange(ctx, today.AddDate(0, 0, -6), today)
	if err != nil {
		return overview, errors.Wrap(err, "7d tool rollups")
	}

	var weekTotal, weekSuccess int64
	var weightedMs float64
	byTool := make(map[string]int64)
	for _, row := range rows {
		weekTotal += row.TotalCount
		weekSuccess += row.SuccessCount
		weightedMs += row.AvgDurationMs * float64(row.TotalCount)
		byTool[row.ToolName] += row.TotalCount
	}

	var mostUsed string
	var mostUsedCount int64
	for tool, count := range byTool {
		if count > mostUsedCount || (count == mostUsedCount && (mostUsed == "" || tool < mostUsed)) {
			mostUsed = tool
			mostUsedCount = count
		}
	}

	overview = telemetry.ToolOverview{
		TotalUsage:       total,
		ActiveTools:      active,
		SuccessRate7d:    percent(weekSuccess, weekTotal),
		TodayUsage:       todayStats.TotalCount,
		TodaySuccessRate: percent(todayStats.SuccessCount, todayStats.TotalCount),
		TodaySessions:    todayStats.UniqueSessions,
		MostUsedTool:     mostUsed,
	}
	if weekTotal > 0 {
		overview.AvgDurationMs7d = weightedMs / float64(weekTotal)
	}

	return overview, nil
}

// ToolTrend returns one point per day over the window, oldest first.
// Days without any usage appear as zero points, not gaps.
func (s *Service) ToolTrend(ctx context.Context, days int) ([]telemetry.TrendPoint, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	today := s.today()
	from := today.AddDate(0, 0, -(days - 1))

	rows, err := s.dailyStats.ToolStatsRange(ctx, from, today)
	if err != nil {
		return nil, errors.Wrap(err, "tool rollup range")
	}

	type acc struct {
		total, success, failure int64
		weightedMs              float64
	}
	byDay := make(map[time.Time]*acc)
	for _, row := range rows {
		day := row.Date.UTC().Truncate(24 * time.Hour)
		a := byDay[day]
		if a == nil {
			a = &acc{}
			byDay[day] = a
		}
		a.total += row.TotalCount
		a.success += row.SuccessCount
		a.failure += row.FailureCount
		a.weightedMs += row.AvgDurationMs * float64(row.TotalCount)
	}

	trend := make([]telemetry.TrendPoint, 0, days)
	for day := from; !day.After(today); day = day.AddDate(0, 0, 1) {
		point := telemetry.TrendPoint{Date: day}
		if a := byDay[day]; a != nil {
			point.TotalUsage = a.total
			point.SuccessCount = a.success
			point.FailureCount = a.failure
			point.SuccessRate = percent(a.success, a.total)
			if a.total > 0 {
				point.AvgDurationMs = a.weightedMs / float64(a.total)
			}
		}
		trend = append(trend, point)
	}

	return trend, nil
}

// ToolDistribution shares out raw-fact usage per tool over the window.
func (s *Service) ToolDistribution(ctx context.Context, days int) ([]telemetry.DistributionSlice, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	from, to := s.window(days)
	counts, err := s.toolUsage.CountsByTool(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "tool counts")
	}

	return distribute(counts), nil
}

// ToolSuccessRates returns the per-tool success split over the window,
// busiest tools first.
func (s *Service) ToolSuccessRates(ctx context.Context, days int) ([]telemetry.SuccessRateEntry, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	today := s.today()
	rows, err := s.dailyStats.ToolStatsRange(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, errors.Wrap(err, "tool rollup range")
	}

	type acc struct{ total, success, failure int64 }
	byTool := make(map[string]*acc)
	for _, row := range rows {
		a := byTool[row.ToolName]
		if a == nil {
			a = &acc{}
			byTool[row.ToolName] = a
		}
		a.total += row.TotalCount
		a.success += row.SuccessCount
		a.failure += row.FailureCount
	}

	entries := make([]telemetry.SuccessRateEntry, 0, len(byTool))
	for tool, a := range byTool {
		entries = append(entries, telemetry.SuccessRateEntry{
			Key:          tool,
			TotalCount:   a.total,
			SuccessCount: a.success,
			FailureCount: a.failure,
			SuccessRate:  percent(a.success, a.total),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalCount != entries[j].TotalCount {
			return entries[i].TotalCount > entries[j].TotalCount
		}
		return entries[i].Key < entries[j].Key
	})

	return entries, nil
}

// ToolPerformance returns the per-tool latency profile over the window. The
// median is taken across the per-day average durations, which keeps it
// computable from rollups alone.
func (s *Service) ToolPerformance(ctx context.Context, days int) ([]telemetry.PerformanceEntry, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	today := s.today()
	rows, err := s.dailyStats.ToolStatsRange(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, errors.Wrap(err, "tool rollup range")
	}

	type acc struct {
		minMs, maxMs int64
		total        int64
		weightedMs   float64
		dayAvgs      []float64
		seen         bool
	}
	byTool := make(map[string]*acc)
	for _, row := range rows {
		a := byTool[row.ToolName]
		if a == nil {
			a = &acc{}
			byTool[row.ToolName] = a
		}
		if !a.seen || row.MinDurationMs < a.minMs {
			a.minMs = row.MinDurationMs
		}
		if row.MaxDurationMs > a.maxMs {
			a.maxMs = row.MaxDurationMs
		}
		a.seen = true
		a.total += row.TotalCount
		a.weightedMs += row.AvgDurationMs * float64(row.TotalCount)
		a.dayAvgs = append(a.dayAvgs, row.AvgDurationMs)
	}

	entries := make([]telemetry.PerformanceEntry, 0, len(byTool))
	for tool, a := range byTool {
		entry := telemetry.PerformanceEntry{
			Key:              tool,
			MinDurationMs:    a.minMs,
			MaxDurationMs:    a.maxMs,
			MedianDurationMs: median(a.dayAvgs),
		}
		if a.total > 0 {
			entry.AvgDurationMs = a.weightedMs / float64(a.total)
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AvgDurationMs != entries[j].AvgDurationMs {
			return entries[i].AvgDurationMs > entries[j].AvgDurationMs
		}
		return entries[i].Key < entries[j].Key
	})

	return entries, nil
}

// ToolRanking returns the top tools by usage count over the window.
func (s *Service) ToolRanking(ctx context.Context, days, top int) ([]telemetry.RankingEntry, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}
	if err := validateTop(top); err != nil {
		return nil, err
	}

	today := s.today()
	rows, err := s.dailyStats.ToolStatsRange(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, errors.Wrap(err, "tool rollup range")
	}

	type acc struct{ total, success int64 }
	byTool := make(map[string]*acc)
	for _, row := range rows {
		a := byTool[row.ToolName]
		if a == nil {
			a = &acc{}
			byTool[row.ToolName] = a
		}
		a.total += row.TotalCount
		a.success += row.SuccessCount
	}

	counts := make([]telemetry.KeyCount, 0, len(byTool))
	for tool, a := range byTool {
		counts = append(counts, telemetry.KeyCount{Key: tool, Count: a.total, SuccessCount: a.success})
	}

	return rank(counts, top), nil
}

// RecentToolUsage returns the latest raw facts, newest first.
func (s *Service) RecentToolUsage(ctx context.Context, limit int) ([]telemetry.ToolUsageRecord, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	records, err := s.toolUsage.Recent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent tool usage")
	}

	return records, nil
}

// ToolHeatmap builds a days x 24 hourly grid from raw facts. Cells[0] is
// today, Cells[1] yesterday, and so on; hours without usage stay zero.
func (s *Service) ToolHeatmap(ctx context.Context, days int) (telemetry.Heatmap, error) {
	if err := validateHeatmapDays(days); err != nil {
		return telemetry.Heatmap{}, err
	}

	today := s.today()
	from, to := s.window(days)

	points, err := s.toolUsage.HeatmapPoints(ctx, from, to)
	if err != nil {
		return telemetry.Heatmap{}, errors.Wrap(err, "heatmap points")
	}

	cells := make([][]int64, days)
	for i := range cells {
		cells[i] = make([]int64, 24)
	}

	for _, p := range points {
		day := p.Date.UTC().Truncate(24 * time.Hour)
		idx := int(today.Sub(day).Hours() / 24)
		if idx < 0 || idx >= days || p.Hour < 0 || p.Hour > 23 {
			continue
		}
		cells[idx][p.Hour] = p.Count
	}

	return telemetry.Heatmap{Days: days, Since: from, Cells: cells}, nil
}
