package analytics

import (
	"context"
	"sort"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// ClientOverview builds the client-connection headline card.
func (s *Service) ClientOverview(ctx context.Context) (telemetry.ClientOverview, error) {
	var overview telemetry.ClientOverview

	total, err := s.connections.TotalCount(ctx)
	if err != nil {
		return overview, errors.Wrap(err, "count connections")
	}

	active, err := s.connections.ActiveClientCount(ctx, s.now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return overview, errors.Wrap(err, "count active clients")
	}

	today := s.today()
	todayStats, err := s.connections.DayStats(ctx, today)
	if err != nil {
		return overview, errors.Wrap(err, "today's connection stats")
	}

	rows, err := s.dailyStats.ClientStatsRange(ctx, today.AddDate(0, 0, -6), today)
	if err != nil {
		return overview, errors.Wrap(err, "7d client rollups")
	}

	var weekTotal, weekFailed int64
	var weightedSec float64
	byClient := make(map[string]int64)
	for _, row := range rows {
		weekTotal += row.TotalConnections
		weekFailed += row.FailedConnections
		weightedSec += row.AvgDurationSeconds * float64(row.TotalConnections)
		byClient[row.ClientName] += row.TotalConnections
	}

	var mostActive string
	var mostActiveCount int64
	for client, count := range byClient {
		if count > mostActiveCount || (count == mostActiveCount && (mostActive == "" || client < mostActive)) {
			mostActive = client
			mostActiveCount = count
		}
	}

	overview = telemetry.ClientOverview{
		TotalConnections: total,
		ActiveClients:    active,
		SuccessRate7d:    percent(weekTotal-weekFailed, weekTotal),
		TodayConnections: todayStats.TotalCount,
		TodaySuccessRate: percent(todayStats.SuccessCount, todayStats.TotalCount),
		MostActiveClient: mostActive,
	}
	if weekTotal > 0 {
		overview.AvgDurationSec7d = weightedSec / float64(weekTotal)
	}

	return overview, nil
}

// ClientTrend returns one point per day over the window, oldest first, with
// zero points for days without connections.
func (s *Service) ClientTrend(ctx context.Context, days int) ([]telemetry.ClientTrendPoint, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	today := s.today()
	from := today.AddDate(0, 0, -(days - 1))

	rows, err := s.dailyStats.ClientStatsRange(ctx, from, today)
	if err != nil {
		return nil, errors.Wrap(err, "client rollup range")
	}

	type acc struct {
		total, failed, toolUsage int64
		weightedSec              float64
	}
	byDay := make(map[time.Time]*acc)
	for _, row := range rows {
		day := row.Date.UTC().Truncate(24 * time.Hour)
		a := byDay[day]
		if a == nil {
			a = &acc{}
			byDay[day] = a
		}
		a.total += row.TotalConnections
		a.failed += row.FailedConnections
		a.toolUsage += row.TotalToolUsage
		a.weightedSec += row.AvgDurationSeconds * float64(row.TotalConnections)
	}

	trend := make([]telemetry.ClientTrendPoint, 0, days)
	for day := from; !day.After(today); day = day.AddDate(0, 0, 1) {
		point := telemetry.ClientTrendPoint{Date: day}
		if a := byDay[day]; a != nil {
			point.TotalConnections = a.total
			point.FailedConnections = a.failed
			point.TotalToolUsage = a.toolUsage
			point.SuccessRate = percent(a.total-a.failed, a.total)
			if a.total > 0 {
				point.AvgDurationSeconds = a.weightedSec / float64(a.total)
			}
		}
		trend = append(trend, point)
	}

	return trend, nil
}

// ClientDistribution shares out raw-fact connections per client name.
func (s *Service) ClientDistribution(ctx context.Context, days int) ([]telemetry.DistributionSlice, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	from, to := s.window(days)
	counts, err := s.connections.CountsByClient(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "client counts")
	}

	return distribute(counts), nil
}

// ClientSuccessRates returns the per-client connection success split over
// the window, merging versions under one client name.
func (s *Service) ClientSuccessRates(ctx context.Context, days int) ([]telemetry.SuccessRateEntry, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	today := s.today()
	rows, err := s.dailyStats.ClientStatsRange(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, errors.Wrap(err, "client rollup range")
	}

	type acc struct{ total, failed int64 }
	byClient := make(map[string]*acc)
	for _, row := range rows {
		a := byClient[row.ClientName]
		if a == nil {
			a = &acc{}
			byClient[row.ClientName] = a
		}
		a.total += row.TotalConnections
		a.failed += row.FailedConnections
	}

	entries := make([]telemetry.SuccessRateEntry, 0, len(byClient))
	for client, a := range byClient {
		entries = append(entries, telemetry.SuccessRateEntry{
			Key:          client,
			TotalCount:   a.total,
			SuccessCount: a.total - a.failed,
			FailureCount: a.failed,
			SuccessRate:  percent(a.total-a.failed, a.total),
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

// ClientPerformance profiles connection durations per client over the
// window, merging versions under the client name.
func (s *Service) ClientPerformance(ctx context.Context, days int) ([]telemetry.ClientPerformanceEntry, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}

	today := s.today()
	rows, err := s.dailyStats.ClientStatsRange(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, errors.Wrap(err, "client rollup range")
	}

	type acc struct {
		minSec, maxSec int64
		total          int64
		weightedSec    float64
		dayAvgs        []float64
		seen           bool
	}
	byClient := make(map[string]*acc)
	for _, row := range rows {
		a := byClient[row.ClientName]
		if a == nil {
			a = &acc{}
			byClient[row.ClientName] = a
		}
		if !a.seen || row.MinDurationSeconds < a.minSec {
			a.minSec = row.MinDurationSeconds
		}
		if row.MaxDurationSeconds > a.maxSec {
			a.maxSec = row.MaxDurationSeconds
		}
		a.seen = true
		a.total += row.TotalConnections
		a.weightedSec += row.AvgDurationSeconds * float64(row.TotalConnections)
		a.dayAvgs = append(a.dayAvgs, row.AvgDurationSeconds)
	}

	entries := make([]telemetry.ClientPerformanceEntry, 0, len(byClient))
	for client, a := range byClient {
		entry := telemetry.ClientPerformanceEntry{
			Key:                   client,
			MinDurationSeconds:    a.minSec,
			MaxDurationSeconds:    a.maxSec,
			MedianDurationSeconds: median(a.dayAvgs),
		}
		if a.total > 0 {
			entry.AvgDurationSeconds = a.weightedSec / float64(a.total)
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AvgDurationSeconds != entries[j].AvgDurationSeconds {
			return entries[i].AvgDurationSeconds > entries[j].AvgDurationSeconds
		}
		return entries[i].Key < entries[j].Key
	})

	return entries, nil
}

// ClientHeatmap builds a days x 24 hourly grid over connect times.
// Cells[0] is today; hours without connections stay zero.
func (s *Service) ClientHeatmap(ctx context.Context, days int) (telemetry.Heatmap, error) {
	if err := validateHeatmapDays(days); err != nil {
		return telemetry.Heatmap{}, err
	}

	today := s.today()
	from, to := s.window(days)

	points, err := s.connections.HeatmapPoints(ctx, from, to)
	if err != nil {
		return telemetry.Heatmap{}, errors.Wrap(err, "connection heatmap points")
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

// ClientRanking returns the top clients by connection count over the window.
func (s *Service) ClientRanking(ctx context.Context, days, top int) ([]telemetry.RankingEntry, error) {
	if err := validateWindowDays(days); err != nil {
		return nil, err
	}
	if err := validateTop(top); err != nil {
		return nil, err
	}

	today := s.today()
	rows, err := s.dailyStats.ClientStatsRange(ctx, today.AddDate(0, 0, -(days-1)), today)
	if err != nil {
		return nil, errors.Wrap(err, "client rollup range")
	}

	type acc struct{ total, failed int64 }
	byClient := make(map[string]*acc)
	for _, row := range rows {
		a := byClient[row.ClientName]
		if a == nil {
			a = &acc{}
			byClient[row.ClientName] = a
		}
		a.total += row.TotalConnections
		a.failed += row.FailedConnections
	}

	counts := make([]telemetry.KeyCount, 0, len(byClient))
	for client, a := range byClient {
		counts = append(counts, telemetry.KeyCount{Key: client, Count: a.total, SuccessCount: a.total - a.failed})
	}

	return rank(counts, top), nil
}

// RecentConnections returns the latest connection records, newest first.
func (s *Service) RecentConnections(ctx context.Context, limit int) ([]telemetry.ClientConnectionRecord, error) {
	if err := validateLimit(limit); err != nil {
		return nil, err
	}

	records, err := s.connections.Recent(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "recent connections")
	}

	return records, nil
}
