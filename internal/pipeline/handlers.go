package pipeline

import (
	"context"
	"time"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/errors"
	"pulse/pkg/logger"
)

// RollupNotifier receives the days whose rollups became stale. Marking is
// fire-and-safe: the notifier coalesces duplicates and regenerates later.
type RollupNotifier interface {
	MarkToolDay(day time.Time)
	MarkClientDay(day time.Time)
}

// Handlers apply events to the fact stores. They run only on the single
// consumer goroutine, so updates to connection records never race.
type Handlers struct {
	toolUsage   telemetry.ToolUsageRepository
	connections telemetry.ClientConnectionRepository
	notifier    RollupNotifier
	now         func() time.Time
}

func NewHandlers(
	toolUsage telemetry.ToolUsageRepository,
	connections telemetry.ClientConnectionRepository,
	notifier RollupNotifier,
) *Handlers {
	return &Handlers{
		toolUsage:   toolUsage,
		connections: connections,
		notifier:    notifier,
		now:         time.Now,
	}
}

// HandleToolUsage appends the invocation fact and, when the event carries a
// session id, bumps that session's counter. The counter bump is best effort:
// its failure is logged but does not fail the event, since the fact itself
// is already persisted.
func (h *Handlers) HandleToolUsage(ctx context.Context, ev telemetry.ToolUsageEvent) error {
	durationMs := ev.FinishedAt.Sub(ev.StartedAt).Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}

	rec := &telemetry.ToolUsageRecord{
		ToolName:     ev.ToolName,
		SessionID:    ev.SessionID,
		StartedAt:    ev.StartedAt,
		FinishedAt:   ev.FinishedAt,
		DurationMs:   durationMs,
		Success:      ev.Success,
		ErrorMessage: ev.ErrorMessage,
		InputBytes:   ev.InputBytes,
		OutputBytes:  ev.OutputBytes,
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
		CreatedAt:    h.now().UTC(),
	}

	if err := h.toolUsage.Insert(ctx, rec); err != nil {
		return errors.Wrapf(err, "insert tool usage %s", ev.ToolName)
	}

	h.notifier.MarkToolDay(ev.StartedAt)

	if ev.SessionID != "" {
		if err := h.HandleClientToolUsageIncrement(ctx, telemetry.ClientToolUsageIncrementEvent{SessionID: ev.SessionID}); err != nil {
			logger.Warnf("Tool usage counter bump failed for session %s: %v", ev.SessionID, err)
		}
	}

	return nil
}

// HandleClientConnection creates the session record in connected state.
func (h *Handlers) HandleClientConnection(ctx context.Context, ev telemetry.ClientConnectionEvent) error {
	if ev.SessionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "client connection without session id")
	}

	connectedAt := ev.ConnectedAt
	if connectedAt.IsZero() {
		connectedAt = h.now().UTC()
	}

	rec := &telemetry.ClientConnectionRecord{
		SessionID:     ev.SessionID,
		ClientName:    ev.ClientName,
		ClientVersion: ev.ClientVersion,
		ClientTitle:   ev.ClientTitle,
		IPAddress:     ev.IPAddress,
		UserAgent:     ev.UserAgent,
		Status:        telemetry.StatusConnected,
		ConnectedAt:   connectedAt,
		CreatedAt:     h.now().UTC(),
		UpdatedAt:     h.now().UTC(),
	}

	if err := h.connections.Insert(ctx, rec); err != nil {
		return errors.Wrapf(err, "insert client connection %s", ev.SessionID)
	}

	h.notifier.MarkClientDay(connectedAt)

	return nil
}

// HandleClientStatusUpdate transitions a session and stamps its duration.
// An unknown session is a benign no-op: the record may have aged out or
// the event arrived out of order. The connection's own day is marked
// stale, not the day of the update.
func (h *Handlers) HandleClientStatusUpdate(ctx context.Context, ev telemetry.ClientStatusUpdateEvent) error {
	if !ev.Status.Valid() {
		return errors.Wrapf(errors.ErrInvalidInput, "unknown connection status %q", ev.Status)
	}

	rec, err := h.connections.GetBySession(ctx, ev.SessionID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			logger.Debugf("Status update for unknown session %s ignored", ev.SessionID)
			return nil
		}
		return errors.Wrapf(err, "load session %s", ev.SessionID)
	}

	disconnectedAt := ev.DisconnectedAt
	if disconnectedAt.IsZero() {
		disconnectedAt = h.now().UTC()
	}

	durationSeconds := int64(disconnectedAt.Sub(rec.ConnectedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	if err := h.connections.UpdateStatus(ctx, ev.SessionID, ev.Status, disconnectedAt, durationSeconds, ev.ErrorMessage); err != nil {
		return errors.Wrapf(err, "update status for session %s", ev.SessionID)
	}

	h.notifier.MarkClientDay(rec.ConnectedAt)

	return nil
}

// HandleClientToolUsageIncrement bumps the per-session counter. Sessions
// that are unknown or were recorded without a user agent match nothing and
// are silently skipped.
func (h *Handlers) HandleClientToolUsageIncrement(ctx context.Context, ev telemetry.ClientToolUsageIncrementEvent) error {
	matched, err := h.connections.IncrementToolUsage(ctx, ev.SessionID)
	if err != nil {
		return errors.Wrapf(err, "increment tool usage for session %s", ev.SessionID)
	}

	if !matched {
		return nil
	}

	rec, err := h.connections.GetBySession(ctx, ev.SessionID)
	if err != nil {
		// Counter is already bumped; worst case the day converges on the
		// next sweep.
		logger.Warnf("Session %s bumped but not reloaded: %v", ev.SessionID, err)
		return nil
	}

	h.notifier.MarkClientDay(rec.ConnectedAt)

	return nil
}
