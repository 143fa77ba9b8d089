package telemetry

import (
	"time"
)

// Event is the closed set of telemetry events accepted by the pipeline.
// Events are immutable: built once at the call site, submitted exactly once,
// and never touched again. The unexported marker keeps the set closed so the
// worker can dispatch with a single exhaustive type switch.
type Event interface {
	isEvent()
	Kind() string
}

// ToolUsageEvent records a single tool invocation, successful or not.
type ToolUsageEvent struct {
	ToolName     string
	SessionID    string // optional correlation to a client connection
	StartedAt    time.Time
	FinishedAt   time.Time
	Success      bool
	ErrorMessage string
	InputBytes   int64
	OutputBytes  int64
	IPAddress    string
	UserAgent    string
}

func (ToolUsageEvent) isEvent()     {}
func (ToolUsageEvent) Kind() string { return "tool_usage" }

// ClientConnectionEvent records a new client session. The session id is
// generated before submission so the producer can correlate later events
// without waiting for the consumer.
type ClientConnectionEvent struct {
	SessionID     string
	ClientName    string
	ClientVersion string
	ClientTitle   string
	IPAddress     string
	UserAgent     string
	ConnectedAt   time.Time
}

func (ClientConnectionEvent) isEvent()     {}
func (ClientConnectionEvent) Kind() string { return "client_connection" }

// ClientStatusUpdateEvent transitions an existing session to a new status.
// A zero DisconnectedAt means "now" at processing time.
type ClientStatusUpdateEvent struct {
	SessionID      string
	Status         ConnectionStatus
	DisconnectedAt time.Time
	ErrorMessage   string
}

func (ClientStatusUpdateEvent) isEvent()     {}
func (ClientStatusUpdateEvent) Kind() string { return "client_status_update" }

// ClientToolUsageIncrementEvent bumps the tool-usage counter of a session.
type ClientToolUsageIncrementEvent struct {
	SessionID string
}

func (ClientToolUsageIncrementEvent) isEvent()     {}
func (ClientToolUsageIncrementEvent) Kind() string { return "client_tool_usage_increment" }
