package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
)

func newTestHandlers() (*Handlers, *memToolUsageRepo, *memConnectionRepo, *recordingNotifier) {
	toolRepo := &memToolUsageRepo{}
	connRepo := newMemConnectionRepo()
	notifier := &recordingNotifier{}
	return NewHandlers(toolRepo, connRepo, notifier), toolRepo, connRepo, notifier
}

func TestHandlers_ToolUsage(t *testing.T) {
	h, toolRepo, _, notifier := newTestHandlers()
	ctx := context.Background()

	started := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	err := h.HandleToolUsage(ctx, telemetry.ToolUsageEvent{
		ToolName:   "search",
		StartedAt:  started,
		FinishedAt: started.Add(250 * time.Millisecond),
		Success:    true,
		InputBytes: 128,
	})
	require.NoError(t, err)

	records := toolRepo.all()
	require.Len(t, records, 1)
	assert.Equal(t, "search", records[0].ToolName)
	assert.Equal(t, int64(250), records[0].DurationMs)
	assert.True(t, records[0].Success)
	assert.False(t, records[0].CreatedAt.IsZero())

	require.Len(t, notifier.markedTool(), 1)
	assert.Equal(t, started, notifier.markedTool()[0])
}

func TestHandlers_ToolUsageNegativeDurationClamped(t *testing.T) {
	h, toolRepo, _, _ := newTestHandlers()

	started := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	err := h.HandleToolUsage(context.Background(), telemetry.ToolUsageEvent{
		ToolName:   "clock-skewed",
		StartedAt:  started,
		FinishedAt: started.Add(-time.Second),
	})
	require.NoError(t, err)

	records := toolRepo.all()
	require.Len(t, records, 1)
	assert.Equal(t, int64(0), records[0].DurationMs)
}

func TestHandlers_ToolUsageBumpsSessionCounter(t *testing.T) {
	h, _, connRepo, _ := newTestHandlers()
	ctx := context.Background()

	require.NoError(t, h.HandleClientConnection(ctx, telemetry.ClientConnectionEvent{
		SessionID:   "sess-1",
		ClientName:  "cli",
		UserAgent:   "cli/1.0",
		ConnectedAt: time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}))

	err := h.HandleToolUsage(ctx, telemetry.ToolUsageEvent{
		ToolName:  "search",
		SessionID: "sess-1",
		StartedAt: time.Date(2026, 8, 30, 9, 5, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rec, err := connRepo.GetBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.ToolUsageCount)
}

func TestHandlers_ToolUsageUnknownSessionStillSucceeds(t *testing.T) {
	h, toolRepo, _, _ := newTestHandlers()

	err := h.HandleToolUsage(context.Background(), telemetry.ToolUsageEvent{
		ToolName:  "search",
		SessionID: "no-such-session",
		StartedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Len(t, toolRepo.all(), 1)
}

func TestHandlers_ClientConnection(t *testing.T) {
	h, _, connRepo, notifier := newTestHandlers()
	ctx := context.Background()

	connectedAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	err := h.HandleClientConnection(ctx, telemetry.ClientConnectionEvent{
		SessionID:     "sess-1",
		ClientName:    "cli",
		ClientVersion: "1.2.0",
		ConnectedAt:   connectedAt,
	})
	require.NoError(t, err)

	rec, err := connRepo.GetBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, telemetry.StatusConnected, rec.Status)
	assert.Equal(t, connectedAt, rec.ConnectedAt)
	assert.Nil(t, rec.DisconnectedAt)

	require.Len(t, notifier.markedClient(), 1)
}

func TestHandlers_ClientConnectionRequiresSessionID(t *testing.T) {
	h, _, _, _ := newTestHandlers()

	err := h.HandleClientConnection(context.Background(), telemetry.ClientConnectionEvent{ClientName: "cli"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestHandlers_ClientStatusUpdate(t *testing.T) {
	h, _, connRepo, notifier := newTestHandlers()
	ctx := context.Background()

	connectedAt := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.HandleClientConnection(ctx, telemetry.ClientConnectionEvent{
		SessionID:   "sess-1",
		ClientName:  "cli",
		ConnectedAt: connectedAt,
	}))

	disconnectedAt := connectedAt.Add(90 * time.Second)
	err := h.HandleClientStatusUpdate(ctx, telemetry.ClientStatusUpdateEvent{
		SessionID:      "sess-1",
		Status:         telemetry.StatusDisconnected,
		DisconnectedAt: disconnectedAt,
	})
	require.NoError(t, err)

	rec, err := connRepo.GetBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, telemetry.StatusDisconnected, rec.Status)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, int64(90), *rec.DurationSeconds)

	// The connection's day is marked, once for the insert and once for
	// the status change.
	assert.Len(t, notifier.markedClient(), 2)
}

func TestHandlers_ClientStatusUpdateZeroTimeMeansNow(t *testing.T) {
	h, _, connRepo, _ := newTestHandlers()
	ctx := context.Background()

	require.NoError(t, h.HandleClientConnection(ctx, telemetry.ClientConnectionEvent{
		SessionID:   "sess-1",
		ConnectedAt: time.Now().UTC().Add(-time.Minute),
	}))

	err := h.HandleClientStatusUpdate(ctx, telemetry.ClientStatusUpdateEvent{
		SessionID: "sess-1",
		Status:    telemetry.StatusTimeout,
	})
	require.NoError(t, err)

	rec, err := connRepo.GetBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, rec.DisconnectedAt)
	assert.WithinDuration(t, time.Now().UTC(), *rec.DisconnectedAt, 5*time.Second)
}

func TestHandlers_ClientStatusUpdateUnknownSession(t *testing.T) {
	h, _, connRepo, notifier := newTestHandlers()

	err := h.HandleClientStatusUpdate(context.Background(), telemetry.ClientStatusUpdateEvent{
		SessionID: "missing",
		Status:    telemetry.StatusDisconnected,
	})
	require.NoError(t, err, "an unknown session is a benign no-op")

	assert.Empty(t, connRepo.records)
	assert.Empty(t, notifier.clientDays)
}

func TestHandlers_ClientStatusUpdateInvalidStatus(t *testing.T) {
	h, _, _, _ := newTestHandlers()

	err := h.HandleClientStatusUpdate(context.Background(), telemetry.ClientStatusUpdateEvent{
		SessionID: "sess-1",
		Status:    telemetry.ConnectionStatus("exploded"),
	})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestHandlers_IncrementSkipsAgentlessSessions(t *testing.T) {
	h, _, connRepo, _ := newTestHandlers()
	ctx := context.Background()

	require.NoError(t, h.HandleClientConnection(ctx, telemetry.ClientConnectionEvent{
		SessionID:   "sess-1",
		ConnectedAt: time.Now().UTC(),
		// no user agent recorded
	}))

	err := h.HandleClientToolUsageIncrement(ctx, telemetry.ClientToolUsageIncrementEvent{SessionID: "sess-1"})
	require.NoError(t, err)

	rec, err := connRepo.GetBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.ToolUsageCount)
}

func TestHandlers_IncrementUnknownSessionIsNoop(t *testing.T) {
	h, _, _, _ := newTestHandlers()

	err := h.HandleClientToolUsageIncrement(context.Background(), telemetry.ClientToolUsageIncrementEvent{SessionID: "missing"})
	assert.NoError(t, err)
}
