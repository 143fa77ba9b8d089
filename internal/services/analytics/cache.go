package analytics

import (
	"context"
	"fmt"
	"time"

	"pulse/internal/adapters/redis"
	"pulse/internal/domain/telemetry"
	"pulse/pkg/logger"
)

const (
	rankingTop = 10

	toolDashboardKey   = "pulse:dashboard:tool:%d"
	clientDashboardKey = "pulse:dashboard:client:%d"
)

// DashboardCache stores serialized dashboard bundles. The Redis adapter
// satisfies it; a nil cache disables caching entirely.
type DashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ToolDashboard bundles overview, trend, distribution and top-10 ranking.
// Bundles are served from cache when fresh; any cache failure falls back to
// computing from the stores.
func (s *Service) ToolDashboard(ctx context.Context, days int) (telemetry.ToolDashboard, error) {
	if err := validateWindowDays(days); err != nil {
		return telemetry.ToolDashboard{}, err
	}

	key := fmt.Sprintf(toolDashboardKey, days)
	var cached telemetry.ToolDashboard
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	overview, err := s.ToolOverview(ctx)
	if err != nil {
		return telemetry.ToolDashboard{}, err
	}
	trend, err := s.ToolTrend(ctx, days)
	if err != nil {
		return telemetry.ToolDashboard{}, err
	}
	distribution, err := s.ToolDistribution(ctx, days)
	if err != nil {
		return telemetry.ToolDashboard{}, err
	}
	ranking, err := s.ToolRanking(ctx, days, rankingTop)
	if err != nil {
		return telemetry.ToolDashboard{}, err
	}

	dashboard := telemetry.ToolDashboard{
		Overview:     overview,
		Trend:        trend,
		Distribution: distribution,
		Ranking:      ranking,
	}
	s.cacheSet(ctx, key, dashboard)

	return dashboard, nil
}

// ClientDashboard is the client-side dashboard bundle.
func (s *Service) ClientDashboard(ctx context.Context, days int) (telemetry.ClientDashboard, error) {
	if err := validateWindowDays(days); err != nil {
		return telemetry.ClientDashboard{}, err
	}

	key := fmt.Sprintf(clientDashboardKey, days)
	var cached telemetry.ClientDashboard
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	overview, err := s.ClientOverview(ctx)
	if err != nil {
		return telemetry.ClientDashboard{}, err
	}
	trend, err := s.ClientTrend(ctx, days)
	if err != nil {
		return telemetry.ClientDashboard{}, err
	}
	distribution, err := s.ClientDistribution(ctx, days)
	if err != nil {
		return telemetry.ClientDashboard{}, err
	}
	ranking, err := s.ClientRanking(ctx, days, rankingTop)
	if err != nil {
		return telemetry.ClientDashboard{}, err
	}

	dashboard := telemetry.ClientDashboard{
		Overview:     overview,
		Trend:        trend,
		Distribution: distribution,
		Ranking:      ranking,
	}
	s.cacheSet(ctx, key, dashboard)

	return dashboard, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}

	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}

	if !redis.IsMiss(err) {
		logger.Warnf("Dashboard cache read failed for %s: %v", key, err)
	}
	return false
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		logger.Warnf("Dashboard cache write failed for %s: %v", key, err)
	}
}
