package analytics

import (
	"fmt"
	"sort"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// Parameter bounds enforced on every read operation.
const (
	MinWindowDays  = 1
	MaxWindowDays  = 365
	MaxHeatmapDays = 30
	MinLimit       = 1
	MaxLimit       = 100
	MinTop         = 1
	MaxTop         = 50
)

// PipelineStats exposes the ingestion pipeline's health counters.
type PipelineStats interface {
	Stats() telemetry.PipelineHealth
}

// Service is the read side: overviews, trends, distributions, rankings and
// dashboards over raw facts and daily rollups. It never writes anything.
type Service struct {
	toolUsage   telemetry.ToolUsageRepository
	connections telemetry.ClientConnectionRepository
	dailyStats  telemetry.DailyStatsRepository
	pipeline    PipelineStats
	cache       DashboardCache
	cacheTTL    time.Duration
	now         func() time.Time
}

// NewService creates the analytics service. cache may be nil, in which case
// dashboard bundles are always computed from the stores.
func NewService(
	toolUsage telemetry.ToolUsageRepository,
	connections telemetry.ClientConnectionRepository,
	dailyStats telemetry.DailyStatsRepository,
	pipeline PipelineStats,
	cache DashboardCache,
	cacheTTL time.Duration,
) *Service {
	return &Service{
		toolUsage:   toolUsage,
		connections: connections,
		dailyStats:  dailyStats,
		pipeline:    pipeline,
		cache:       cache,
		cacheTTL:    cacheTTL,
		now:         time.Now,
	}
}

// PipelineHealth snapshots the ingestion pipeline counters.
func (s *Service) PipelineHealth() telemetry.PipelineHealth {
	return s.pipeline.Stats()
}

func validateWindowDays(days int) error {
	if days < MinWindowDays || days > MaxWindowDays {
		return errors.NewValidationError("days", fmt.Sprintf("must be between %d and %d", MinWindowDays, MaxWindowDays), days)
	}
	return nil
}

func validateHeatmapDays(days int) error {
	if days < MinWindowDays || days > MaxHeatmapDays {
		return errors.NewValidationError("days", fmt.Sprintf("must be between %d and %d", MinWindowDays, MaxHeatmapDays), days)
	}
	return nil
}

func validateLimit(limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return errors.NewValidationError("limit", fmt.Sprintf("must be between %d and %d", MinLimit, MaxLimit), limit)
	}
	return nil
}

func validateTop(top int) error {
	if top < MinTop || top > MaxTop {
		return errors.NewValidationError("top", fmt.Sprintf("must be between %d and %d", MinTop, MaxTop), top)
	}
	return nil
}

// today returns midnight UTC of the current day.
func (s *Service) today() time.Time {
	u := s.now().UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// window converts a day count into [from 00:00, tomorrow 00:00) UTC bounds
// where from is days-1 before today, so days=1 is just today.
func (s *Service) window(days int) (time.Time, time.Time) {
	today := s.today()
	return today.AddDate(0, 0, -(days - 1)), today.AddDate(0, 0, 1)
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// median of the values; even-sized inputs average the two middle values.
// Empty input yields 0.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// rank orders counts descending with ascending key as the tie-break and
// keeps the first top entries.
func rank(entries []telemetry.KeyCount, top int) []telemetry.RankingEntry {
	sorted := append([]telemetry.KeyCount(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Key < sorted[j].Key
	})

	if len(sorted) > top {
		sorted = sorted[:top]
	}

	ranking := make([]telemetry.RankingEntry, 0, len(sorted))
	for i, e := range sorted {
		ranking = append(ranking, telemetry.RankingEntry{
			Rank:        i + 1,
			Key:         e.Key,
			Count:       e.Count,
			SuccessRate: percent(e.SuccessCount, e.Count),
		})
	}

	return ranking
}

// distribute converts counts into percentage slices. A zero total yields an
// empty slice, not NaN percentages.
func distribute(entries []telemetry.KeyCount) []telemetry.DistributionSlice {
	var total int64
	for _, e := range entries {
		total += e.Count
	}

	if total == 0 {
		return []telemetry.DistributionSlice{}
	}

	slices := make([]telemetry.DistributionSlice, 0, len(entries))
	for _, e := range entries {
		slices = append(slices, telemetry.DistributionSlice{
			Key:        e.Key,
			Count:      e.Count,
			Percentage: percent(e.Count, total),
		})
	}

	return slices
}
