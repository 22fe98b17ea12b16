// Package audit provides the append-only audit trail for trust lifecycle
// transitions. Sinks are best-effort: a failing sink is logged and reported,
// never allowed to block or roll back the state transition it describes.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/trustcore/internal/core"
)

// Event is one immutable audit entry. State and audit log must never
// diverge: every lifecycle transition appends exactly one of these before or
// atomically with the mutation.
type Event struct {
	EventID   string       `json:"event_id"`
	AgentID   core.AgentID `json:"agent_id"`
	Action    string       `json:"action"`
	FromState string       `json:"from_state,omitempty"`
	ToState   string       `json:"to_state,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Actor     string       `json:"actor,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewEvent builds an audit event with a fresh ID.
func NewEvent(agentID core.AgentID, action, fromState, toState, reason, actor string, ts time.Time) Event {
	return Event{
		EventID:   uuid.NewString(),
		AgentID:   agentID,
		Action:    action,
		FromState: fromState,
		ToState:   toState,
		Reason:    reason,
		Actor:     actor,
		Timestamp: ts,
	}
}

// Sink receives audit events. Append-only by contract.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// LogSink writes audit events to the process log. The fallback sink for
// local development.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: log.New(log.Writer(), "[Audit] ", log.LstdFlags)}
}

func (s *LogSink) Append(_ context.Context, event Event) error {
	s.logger.Printf("%s agent=%s %s→%s reason=%q actor=%s",
		event.Action, event.AgentID, event.FromState, event.ToState, event.Reason, event.Actor)
	return nil
}

// MultiSink tees events to several sinks. Each sink gets its own attempt;
// the first error is returned after all sinks have been tried.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Append(ctx context.Context, event Event) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Append(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
