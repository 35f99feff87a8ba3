package engine

import (
	"time"
)

// AuditEventType identifies the kind of engine lifecycle event.
type AuditEventType string

const (
	EventRunCreated    AuditEventType = "run.created"
	EventRunClaimed    AuditEventType = "run.claimed"
	EventStepCompleted AuditEventType = "step.completed"
	EventRunFinalized  AuditEventType = "run.finalized"
)

// AuditEvent is emitted once per run state transition for external
// persistence. The engine does not store audit events itself.
type AuditEvent struct {
	Type         AuditEventType
	TenantID     string
	RunID        string
	DefinitionID string
	StepIndex    int
	Status       string
	Detail       string
	Timestamp    time.Time
}

// AuditSink receives engine lifecycle events. Implementations must not
// block; a slow sink stalls the run's worker.
type AuditSink interface {
	Emit(event AuditEvent)
}

// LogSink writes audit events through the application logger.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs the event.
func (s *LogSink) Emit(event AuditEvent) {
	s.logger.Info("audit: type=%s tenant=%s run=%s definition=%s step=%d status=%s detail=%q",
		event.Type, event.TenantID, event.RunID, event.DefinitionID, event.StepIndex, event.Status, event.Detail)
}

// NopSink discards all events.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(event AuditEvent) {}
