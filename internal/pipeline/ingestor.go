package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pulse/internal/domain/telemetry"
	"pulse/pkg/logger"
)

// Ingestor is the write facade producers call. Submission failures are
// logged, not propagated: telemetry must never break the caller.
type Ingestor struct {
	channel *Channel
	now     func() time.Time
}

func NewIngestor(channel *Channel) *Ingestor {
	return &Ingestor{
		channel: channel,
		now:     time.Now,
	}
}

// RecordToolUsage submits one tool invocation fact.
func (i *Ingestor) RecordToolUsage(ctx context.Context, ev telemetry.ToolUsageEvent) {
	if ev.StartedAt.IsZero() {
		ev.StartedAt = i.now().UTC()
	}
	if ev.FinishedAt.IsZero() {
		ev.FinishedAt = ev.StartedAt
	}

	i.submit(ctx, ev)
}

// RecordClientConnection submits a new session and returns its id
// immediately, before the consumer has seen the event. Later status and
// tool-usage calls correlate through this id.
func (i *Ingestor) RecordClientConnection(ctx context.Context, ev telemetry.ClientConnectionEvent) string {
	if ev.SessionID == "" {
		ev.SessionID = uuid.New().String()
	}
	if ev.ConnectedAt.IsZero() {
		ev.ConnectedAt = i.now().UTC()
	}

	i.submit(ctx, ev)

	return ev.SessionID
}

// RecordClientStatus submits a status transition for an existing session.
func (i *Ingestor) RecordClientStatus(ctx context.Context, sessionID string, status telemetry.ConnectionStatus, errorMessage string) {
	i.submit(ctx, telemetry.ClientStatusUpdateEvent{
		SessionID:    sessionID,
		Status:       status,
		ErrorMessage: errorMessage,
	})
}

// IncrementClientToolUsage bumps the tool-usage counter of a session.
func (i *Ingestor) IncrementClientToolUsage(ctx context.Context, sessionID string) {
	i.submit(ctx, telemetry.ClientToolUsageIncrementEvent{SessionID: sessionID})
}

func (i *Ingestor) submit(ctx context.Context, ev telemetry.Event) {
	if err := i.channel.Submit(ctx, ev); err != nil {
		logger.Warnf("Dropped %s event: %v", ev.Kind(), err)
	}
}
