package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

type fakeToolRepo struct {
	total    int64
	active   int64
	dayStats telemetry.DayStats
	counts   []telemetry.KeyCount
	points   []telemetry.HeatmapPoint
	recent   []telemetry.ToolUsageRecord
}

func (f *fakeToolRepo) Insert(context.Context, *telemetry.ToolUsageRecord) error { return nil }
func (f *fakeToolRepo) TotalCount(context.Context) (int64, error)                { return f.total, nil }
func (f *fakeToolRepo) ActiveToolCount(context.Context, time.Time) (int64, error) {
	return f.active, nil
}
func (f *fakeToolRepo) DayStats(context.Context, time.Time) (telemetry.DayStats, error) {
	return f.dayStats, nil
}
func (f *fakeToolRepo) CountsByTool(context.Context, time.Time, time.Time) ([]telemetry.KeyCount, error) {
	return f.counts, nil
}
func (f *fakeToolRepo) DailyAggregates(context.Context, time.Time) ([]telemetry.DailyToolStatistics, error) {
	return nil, nil
}
func (f *fakeToolRepo) HeatmapPoints(context.Context, time.Time, time.Time) ([]telemetry.HeatmapPoint, error) {
	return f.points, nil
}
func (f *fakeToolRepo) Recent(_ context.Context, limit int) ([]telemetry.ToolUsageRecord, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakeConnRepo struct {
	total    int64
	active   int64
	dayStats telemetry.DayStats
	counts   []telemetry.KeyCount
	points   []telemetry.HeatmapPoint
	recent   []telemetry.ClientConnectionRecord
}

func (f *fakeConnRepo) Insert(context.Context, *telemetry.ClientConnectionRecord) error { return nil }
func (f *fakeConnRepo) GetBySession(context.Context, string) (*telemetry.ClientConnectionRecord, error) {
	return nil, errors.ErrNotFound
}
func (f *fakeConnRepo) UpdateStatus(context.Context, string, telemetry.ConnectionStatus, time.Time, int64, string) error {
	return nil
}
func (f *fakeConnRepo) IncrementToolUsage(context.Context, string) (bool, error) { return false, nil }
func (f *fakeConnRepo) TotalCount(context.Context) (int64, error)                { return f.total, nil }
func (f *fakeConnRepo) ActiveClientCount(context.Context, time.Time) (int64, error) {
	return f.active, nil
}
func (f *fakeConnRepo) DayStats(context.Context, time.Time) (telemetry.DayStats, error) {
	return f.dayStats, nil
}
func (f *fakeConnRepo) CountsByClient(context.Context, time.Time, time.Time) ([]telemetry.KeyCount, error) {
	return f.counts, nil
}
func (f *fakeConnRepo) DailyAggregates(context.Context, time.Time) ([]telemetry.DailyClientStatistics, error) {
	return nil, nil
}
func (f *fakeConnRepo) HeatmapPoints(context.Context, time.Time, time.Time) ([]telemetry.HeatmapPoint, error) {
	return f.points, nil
}
func (f *fakeConnRepo) Recent(context.Context, int) ([]telemetry.ClientConnectionRecord, error) {
	return f.recent, nil
}

type fakeDailyStats struct {
	toolRows   []telemetry.DailyToolStatistics
	clientRows []telemetry.DailyClientStatistics
}

func (f *fakeDailyStats) UpsertToolStats(context.Context, []telemetry.DailyToolStatistics) error {
	return nil
}
func (f *fakeDailyStats) UpsertClientStats(context.Context, []telemetry.DailyClientStatistics) error {
	return nil
}
func (f *fakeDailyStats) ToolStatsRange(_ context.Context, from, to time.Time) ([]telemetry.DailyToolStatistics, error) {
	var out []telemetry.DailyToolStatistics
	for _, row := range f.toolRows {
		if !row.Date.Before(from) && !row.Date.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}
func (f *fakeDailyStats) ClientStatsRange(_ context.Context, from, to time.Time) ([]telemetry.DailyClientStatistics, error) {
	var out []telemetry.DailyClientStatistics
	for _, row := range f.clientRows {
		if !row.Date.Before(from) && !row.Date.After(to) {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakePipeline struct {
	health telemetry.PipelineHealth
}

func (f *fakePipeline) Stats() telemetry.PipelineHealth { return f.health }

type fakeCache struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	gets    int
	hits    int
	sets    int
	missErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), missErr: errors.New("cache miss")}
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	f.gets++
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.data[key]
	if !ok {
		return f.missErr
	}
	f.hits++
	return json.Unmarshal(raw, dest)
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.data[key] = raw
	return nil
}

var testNow = time.Date(2026, 8, 31, 16, 30, 0, 0, time.UTC)

func day(offset int) time.Time {
	return time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func newTestService(toolRepo *fakeToolRepo, connRepo *fakeConnRepo, daily *fakeDailyStats, cache DashboardCache) *Service {
	if toolRepo == nil {
		toolRepo = &fakeToolRepo{}
	}
	if connRepo == nil {
		connRepo = &fakeConnRepo{}
	}
	if daily == nil {
		daily = &fakeDailyStats{}
	}

	svc := NewService(toolRepo, connRepo, daily, &fakePipeline{}, cache, 30*time.Second)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestService_BoundsValidation(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		call  func() error
		field string
	}{
		{"trend days too low", func() error { _, err := svc.ToolTrend(ctx, 0); return err }, "days"},
		{"trend days too high", func() error { _, err := svc.ToolTrend(ctx, 366); return err }, "days"},
		{"heatmap days too high", func() error { _, err := svc.ToolHeatmap(ctx, 31); return err }, "days"},
		{"heatmap days too low", func() error { _, err := svc.ToolHeatmap(ctx, 0); return err }, "days"},
		{"recent limit too high", func() error { _, err := svc.RecentToolUsage(ctx, 101); return err }, "limit"},
		{"recent limit too low", func() error { _, err := svc.RecentConnections(ctx, 0); return err }, "limit"},
		{"ranking top too high", func() error { _, err := svc.ToolRanking(ctx, 7, 51); return err }, "top"},
		{"ranking top too low", func() error { _, err := svc.ClientRanking(ctx, 7, 0); return err }, "top"},
		{"dashboard days too high", func() error { _, err := svc.ToolDashboard(ctx, 400); return err }, "days"},
		{"client performance days too high", func() error { _, err := svc.ClientPerformance(ctx, 366); return err }, "days"},
		{"client heatmap days too high", func() error { _, err := svc.ClientHeatmap(ctx, 31); return err }, "days"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var verr *errors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestService_BoundsAreInclusive(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.ToolTrend(ctx, 365)
	assert.NoError(t, err)
	_, err = svc.ToolHeatmap(ctx, 30)
	assert.NoError(t, err)
	_, err = svc.RecentToolUsage(ctx, 100)
	assert.NoError(t, err)
	_, err = svc.ToolRanking(ctx, 1, 50)
	assert.NoError(t, err)
}

func TestService_ToolDistributionPercentages(t *testing.T) {
	toolRepo := &fakeToolRepo{counts: []telemetry.KeyCount{
		{Key: "search", Count: 60},
		{Key: "fetch", Count: 30},
		{Key: "write", Count: 10},
	}}
	svc := newTestService(toolRepo, nil, nil, nil)

	slices, err := svc.ToolDistribution(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, slices, 3)

	assert.InDelta(t, 60.0, slices[0].Percentage, 0.001)
	assert.InDelta(t, 30.0, slices[1].Percentage, 0.001)
	assert.InDelta(t, 10.0, slices[2].Percentage, 0.001)

	var sum float64
	for _, s := range slices {
		sum += s.Percentage
	}
	assert.InDelta(t, 100.0, sum, 0.001)
}

func TestService_ToolDistributionEmptyWindow(t *testing.T) {
	svc := newTestService(&fakeToolRepo{}, nil, nil, nil)

	slices, err := svc.ToolDistribution(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, slices)
}

func TestService_ToolTrendZeroFillsMissingDays(t *testing.T) {
	daily := &fakeDailyStats{toolRows: []telemetry.DailyToolStatistics{
		{Date: day(0), ToolName: "search", TotalCount: 10, SuccessCount: 8, FailureCount: 2, AvgDurationMs: 100},
		{Date: day(0), ToolName: "fetch", TotalCount: 10, SuccessCount: 10, AvgDurationMs: 300},
		{Date: day(-2), ToolName: "search", TotalCount: 4, SuccessCount: 4, AvgDurationMs: 50},
	}}
	svc := newTestService(nil, nil, daily, nil)

	trend, err := svc.ToolTrend(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, trend, 3)

	// oldest first
	assert.Equal(t, day(-2), trend[0].Date)
	assert.Equal(t, int64(4), trend[0].TotalUsage)

	assert.Equal(t, day(-1), trend[1].Date)
	assert.Equal(t, int64(0), trend[1].TotalUsage)
	assert.Equal(t, float64(0), trend[1].SuccessRate)

	assert.Equal(t, day(0), trend[2].Date)
	assert.Equal(t, int64(20), trend[2].TotalUsage)
	assert.InDelta(t, 90.0, trend[2].SuccessRate, 0.001)
	// weighted: (100*10 + 300*10) / 20
	assert.InDelta(t, 200.0, trend[2].AvgDurationMs, 0.001)
}

func TestService_ToolRankingTieBreak(t *testing.T) {
	daily := &fakeDailyStats{toolRows: []telemetry.DailyToolStatistics{
		{Date: day(0), ToolName: "zeta", TotalCount: 5, SuccessCount: 5},
		{Date: day(0), ToolName: "alpha", TotalCount: 5, SuccessCount: 4},
		{Date: day(0), ToolName: "mid", TotalCount: 9, SuccessCount: 9},
	}}
	svc := newTestService(nil, nil, daily, nil)

	ranking, err := svc.ToolRanking(context.Background(), 7, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 3)

	assert.Equal(t, "mid", ranking[0].Key)
	assert.Equal(t, 1, ranking[0].Rank)
	// ties resolve by key ascending
	assert.Equal(t, "alpha", ranking[1].Key)
	assert.Equal(t, "zeta", ranking[2].Key)
	assert.Equal(t, 3, ranking[2].Rank)
}

func TestService_ToolRankingTruncatesToTop(t *testing.T) {
	rows := make([]telemetry.DailyToolStatistics, 0, 10)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		rows = append(rows, telemetry.DailyToolStatistics{Date: day(0), ToolName: name, TotalCount: 1})
	}
	svc := newTestService(nil, nil, &fakeDailyStats{toolRows: rows}, nil)

	ranking, err := svc.ToolRanking(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Len(t, ranking, 2)
}

func TestService_ToolPerformanceMedian(t *testing.T) {
	daily := &fakeDailyStats{toolRows: []telemetry.DailyToolStatistics{
		{Date: day(0), ToolName: "search", TotalCount: 1, MinDurationMs: 5, AvgDurationMs: 10, MaxDurationMs: 40},
		{Date: day(-1), ToolName: "search", TotalCount: 1, MinDurationMs: 8, AvgDurationMs: 30, MaxDurationMs: 90},
		{Date: day(-2), ToolName: "search", TotalCount: 1, MinDurationMs: 2, AvgDurationMs: 20, MaxDurationMs: 60},
	}}
	svc := newTestService(nil, nil, daily, nil)

	entries, err := svc.ToolPerformance(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, int64(2), e.MinDurationMs)
	assert.Equal(t, int64(90), e.MaxDurationMs)
	assert.InDelta(t, 20.0, e.MedianDurationMs, 0.001)
	assert.InDelta(t, 20.0, e.AvgDurationMs, 0.001)
}

func TestService_ToolPerformanceMedianEvenCount(t *testing.T) {
	daily := &fakeDailyStats{toolRows: []telemetry.DailyToolStatistics{
		{Date: day(0), ToolName: "search", TotalCount: 1, AvgDurationMs: 10},
		{Date: day(-1), ToolName: "search", TotalCount: 1, AvgDurationMs: 30},
	}}
	svc := newTestService(nil, nil, daily, nil)

	entries, err := svc.ToolPerformance(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 20.0, entries[0].MedianDurationMs, 0.001)
}

func TestService_ToolHeatmapShape(t *testing.T) {
	toolRepo := &fakeToolRepo{points: []telemetry.HeatmapPoint{
		{Date: day(0), Hour: 16, Count: 7},
		{Date: day(-1), Hour: 3, Count: 2},
		{Date: day(-10), Hour: 5, Count: 99}, // outside the window, ignored
	}}
	svc := newTestService(toolRepo, nil, nil, nil)

	hm, err := svc.ToolHeatmap(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 3, hm.Days)
	assert.Equal(t, day(-2), hm.Since)
	require.Len(t, hm.Cells, 3)
	for _, row := range hm.Cells {
		assert.Len(t, row, 24)
	}

	// Cells[0] is today
	assert.Equal(t, int64(7), hm.Cells[0][16])
	assert.Equal(t, int64(2), hm.Cells[1][3])
	assert.Equal(t, int64(0), hm.Cells[2][5])
}

func TestService_ToolOverviewMath(t *testing.T) {
	toolRepo := &fakeToolRepo{
		total:    1000,
		active:   12,
		dayStats: telemetry.DayStats{TotalCount: 40, SuccessCount: 30, UniqueSessions: 5},
	}
	daily := &fakeDailyStats{toolRows: []telemetry.DailyToolStatistics{
		{Date: day(0), ToolName: "search", TotalCount: 80, SuccessCount: 60, AvgDurationMs: 100},
		{Date: day(-1), ToolName: "fetch", TotalCount: 20, SuccessCount: 20, AvgDurationMs: 200},
	}}
	svc := newTestService(toolRepo, nil, daily, nil)

	overview, err := svc.ToolOverview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1000), overview.TotalUsage)
	assert.Equal(t, int64(12), overview.ActiveTools)
	assert.InDelta(t, 80.0, overview.SuccessRate7d, 0.001)       // 80/100
	assert.InDelta(t, 120.0, overview.AvgDurationMs7d, 0.001)    // (100*80+200*20)/100
	assert.Equal(t, int64(40), overview.TodayUsage)
	assert.InDelta(t, 75.0, overview.TodaySuccessRate, 0.001)
	assert.Equal(t, int64(5), overview.TodaySessions)
	assert.Equal(t, "search", overview.MostUsedTool)
}

func TestService_OverviewEmptyStoresYieldZeroes(t *testing.T) {
	svc := newTestService(nil, nil, nil, nil)

	overview, err := svc.ToolOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0), overview.SuccessRate7d)
	assert.Equal(t, float64(0), overview.AvgDurationMs7d)
	assert.Equal(t, "", overview.MostUsedTool)

	clientOverview, err := svc.ClientOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0), clientOverview.SuccessRate7d)
}

func TestService_ClientTrendAndSuccessRates(t *testing.T) {
	daily := &fakeDailyStats{clientRows: []telemetry.DailyClientStatistics{
		{Date: day(0), ClientName: "cli", ClientVersion: "1.0", TotalConnections: 8, FailedConnections: 2, AvgDurationSeconds: 60, TotalToolUsage: 40},
		{Date: day(0), ClientName: "cli", ClientVersion: "1.1", TotalConnections: 2, FailedConnections: 0, AvgDurationSeconds: 120, TotalToolUsage: 10},
	}}
	svc := newTestService(nil, nil, daily, nil)
	ctx := context.Background()

	trend, err := svc.ClientTrend(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, int64(0), trend[0].TotalConnections)
	assert.Equal(t, int64(10), trend[1].TotalConnections)
	assert.InDelta(t, 80.0, trend[1].SuccessRate, 0.001)
	// weighted: (60*8 + 120*2) / 10
	assert.InDelta(t, 72.0, trend[1].AvgDurationSeconds, 0.001)

	rates, err := svc.ClientSuccessRates(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rates, 1, "versions merge under one client name")
	assert.Equal(t, "cli", rates[0].Key)
	assert.Equal(t, int64(10), rates[0].TotalCount)
	assert.Equal(t, int64(2), rates[0].FailureCount)
	assert.InDelta(t, 80.0, rates[0].SuccessRate, 0.001)
}

func TestService_ClientPerformanceMergesVersions(t *testing.T) {
	daily := &fakeDailyStats{clientRows: []telemetry.DailyClientStatistics{
		{Date: day(0), ClientName: "cli", ClientVersion: "1.0", TotalConnections: 8, MinDurationSeconds: 5, AvgDurationSeconds: 60, MaxDurationSeconds: 300},
		{Date: day(-1), ClientName: "cli", ClientVersion: "1.1", TotalConnections: 2, MinDurationSeconds: 2, AvgDurationSeconds: 120, MaxDurationSeconds: 600},
	}}
	svc := newTestService(nil, nil, daily, nil)

	entries, err := svc.ClientPerformance(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, entries, 1, "versions merge under one client name")

	e := entries[0]
	assert.Equal(t, "cli", e.Key)
	assert.Equal(t, int64(2), e.MinDurationSeconds)
	assert.Equal(t, int64(600), e.MaxDurationSeconds)
	// weighted: (60*8 + 120*2) / 10
	assert.InDelta(t, 72.0, e.AvgDurationSeconds, 0.001)
	// median of the per-day averages 60 and 120
	assert.InDelta(t, 90.0, e.MedianDurationSeconds, 0.001)
}

func TestService_ClientHeatmapShape(t *testing.T) {
	connRepo := &fakeConnRepo{points: []telemetry.HeatmapPoint{
		{Date: day(0), Hour: 9, Count: 4},
		{Date: day(-10), Hour: 5, Count: 99}, // outside the window, ignored
	}}
	svc := newTestService(nil, connRepo, nil, nil)

	hm, err := svc.ClientHeatmap(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, hm.Days)
	assert.Equal(t, day(-1), hm.Since)
	require.Len(t, hm.Cells, 2)
	for _, row := range hm.Cells {
		assert.Len(t, row, 24)
	}
	assert.Equal(t, int64(4), hm.Cells[0][9])
}

func TestService_PipelineHealthPassesThrough(t *testing.T) {
	pipeline := &fakePipeline{health: telemetry.PipelineHealth{Processed: 42, Healthy: true}}
	svc := NewService(&fakeToolRepo{}, &fakeConnRepo{}, &fakeDailyStats{}, pipeline, nil, 0)

	health := svc.PipelineHealth()
	assert.Equal(t, uint64(42), health.Processed)
	assert.True(t, health.Healthy)
}

func TestService_ToolDashboardUsesCache(t *testing.T) {
	cache := newFakeCache()
	toolRepo := &fakeToolRepo{total: 10}
	svc := newTestService(toolRepo, nil, nil, cache)
	ctx := context.Background()

	first, err := svc.ToolDashboard(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	toolRepo.total = 9999 // a cache hit must not see this

	second, err := svc.ToolDashboard(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.Overview.TotalUsage, second.Overview.TotalUsage)
}

func TestService_DashboardCacheFailureFallsBack(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	svc := newTestService(&fakeToolRepo{total: 10}, nil, nil, cache)

	dashboard, err := svc.ToolDashboard(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(10), dashboard.Overview.TotalUsage)
}

func TestService_ClientDashboard(t *testing.T) {
	connRepo := &fakeConnRepo{total: 5, counts: []telemetry.KeyCount{{Key: "cli", Count: 5, SuccessCount: 4}}}
	daily := &fakeDailyStats{clientRows: []telemetry.DailyClientStatistics{
		{Date: day(0), ClientName: "cli", TotalConnections: 5, FailedConnections: 1},
	}}
	svc := newTestService(nil, connRepo, daily, nil)

	dashboard, err := svc.ClientDashboard(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(5), dashboard.Overview.TotalConnections)
	assert.Len(t, dashboard.Trend, 7)
	require.Len(t, dashboard.Ranking, 1)
	assert.Equal(t, "cli", dashboard.Ranking[0].Key)
}
