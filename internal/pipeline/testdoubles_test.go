package pipeline

import (
	"context"
	"sync"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

// memToolUsageRepo is an in-memory ToolUsageRepository for worker tests.
type memToolUsageRepo struct {
	mu        sync.Mutex
	records   []telemetry.ToolUsageRecord
	insertErr error
}

func (r *memToolUsageRepo) Insert(_ context.Context, rec *telemetry.ToolUsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return r.insertErr
	}

	r.records = append(r.records, *rec)
	return nil
}

func (r *memToolUsageRepo) all() []telemetry.ToolUsageRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]telemetry.ToolUsageRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *memToolUsageRepo) TotalCount(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.records)), nil
}

func (r *memToolUsageRepo) ActiveToolCount(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memToolUsageRepo) DayStats(context.Context, time.Time) (telemetry.DayStats, error) {
	return telemetry.DayStats{}, nil
}

func (r *memToolUsageRepo) CountsByTool(context.Context, time.Time, time.Time) ([]telemetry.KeyCount, error) {
	return nil, nil
}

func (r *memToolUsageRepo) DailyAggregates(context.Context, time.Time) ([]telemetry.DailyToolStatistics, error) {
	return nil, nil
}

func (r *memToolUsageRepo) HeatmapPoints(context.Context, time.Time, time.Time) ([]telemetry.HeatmapPoint, error) {
	return nil, nil
}

func (r *memToolUsageRepo) Recent(context.Context, int) ([]telemetry.ToolUsageRecord, error) {
	return r.all(), nil
}

// memConnectionRepo is an in-memory ClientConnectionRepository.
type memConnectionRepo struct {
	mu      sync.Mutex
	records map[string]*telemetry.ClientConnectionRecord
}

func newMemConnectionRepo() *memConnectionRepo {
	return &memConnectionRepo{records: make(map[string]*telemetry.ClientConnectionRecord)}
}

func (r *memConnectionRepo) Insert(_ context.Context, rec *telemetry.ClientConnectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[rec.SessionID]; ok {
		return errors.ErrAlreadyExists
	}

	clone := *rec
	r.records[rec.SessionID] = &clone
	return nil
}

func (r *memConnectionRepo) GetBySession(_ context.Context, sessionID string) (*telemetry.ClientConnectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if !ok {
		return nil, errors.ErrNotFound
	}

	clone := *rec
	return &clone, nil
}

func (r *memConnectionRepo) UpdateStatus(_ context.Context, sessionID string, status telemetry.ConnectionStatus, disconnectedAt time.Time, durationSeconds int64, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if !ok {
		return errors.ErrNotFound
	}

	rec.Status = status
	rec.DisconnectedAt = &disconnectedAt
	rec.DurationSeconds = &durationSeconds
	rec.ErrorMessage = errorMessage
	return nil
}

func (r *memConnectionRepo) IncrementToolUsage(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[sessionID]
	if !ok || rec.UserAgent == "" {
		return false, nil
	}

	rec.ToolUsageCount++
	return true, nil
}

func (r *memConnectionRepo) TotalCount(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.records)), nil
}

func (r *memConnectionRepo) ActiveClientCount(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memConnectionRepo) DayStats(context.Context, time.Time) (telemetry.DayStats, error) {
	return telemetry.DayStats{}, nil
}

func (r *memConnectionRepo) CountsByClient(context.Context, time.Time, time.Time) ([]telemetry.KeyCount, error) {
	return nil, nil
}

func (r *memConnectionRepo) DailyAggregates(context.Context, time.Time) ([]telemetry.DailyClientStatistics, error) {
	return nil, nil
}

func (r *memConnectionRepo) HeatmapPoints(context.Context, time.Time, time.Time) ([]telemetry.HeatmapPoint, error) {
	return nil, nil
}

func (r *memConnectionRepo) Recent(context.Context, int) ([]telemetry.ClientConnectionRecord, error) {
	return nil, nil
}

// recordingNotifier captures marked days.
type recordingNotifier struct {
	mu         sync.Mutex
	toolDays   []time.Time
	clientDays []time.Time
}

func (n *recordingNotifier) MarkToolDay(day time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toolDays = append(n.toolDays, day)
}

func (n *recordingNotifier) MarkClientDay(day time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clientDays = append(n.clientDays, day)
}

func (n *recordingNotifier) markedTool() []time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Time(nil), n.toolDays...)
}

func (n *recordingNotifier) markedClient() []time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]time.Time(nil), n.clientDays...)
}

// recordingRollupService counts regenerations per day.
type recordingRollupService struct {
	mu         sync.Mutex
	toolRuns   map[time.Time]int
	clientRuns map[time.Time]int
	toolErr    error
	failOnce   bool
}

func newRecordingRollupService() *recordingRollupService {
	return &recordingRollupService{
		toolRuns:   make(map[time.Time]int),
		clientRuns: make(map[time.Time]int),
	}
}

func (s *recordingRollupService) RegenerateToolDaily(ctx context.Context, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.toolErr != nil {
		err := s.toolErr
		if s.failOnce {
			s.toolErr = nil
		}
		return err
	}

	s.toolRuns[day]++
	return nil
}

func (s *recordingRollupService) RegenerateClientDaily(ctx context.Context, day time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientRuns[day]++
	return nil
}

func (s *recordingRollupService) toolRunCount(day time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolRuns[day]
}

func (s *recordingRollupService) clientRunCount(day time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientRuns[day]
}
