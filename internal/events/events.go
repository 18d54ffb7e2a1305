// Package events implements the typed, non-blocking Event Bus (§2 #2, §4.11).
// Every pipeline transition emits an event; a background worker fans each
// one out to the console, the append-only event log file, and 0..N
// WebSocket subscribers. Grounded on the teacher's categorized logging
// pattern (internal/logging) and its channel-based spawn queue
// (internal/core/spawn_queue.go) for the bounded, drop-oldest queue shape.
package events

import (
	"time"
)

// Type enumerates the typed events named in §4.11.
type Type string

const (
	TaskQueued           Type = "task_queued"
	AgentStarted         Type = "agent_started"
	AgentCompleted       Type = "agent_completed"
	ValidationComplete   Type = "validation_complete"
	HITLEscalated        Type = "hitl_escalated"
	BudgetWarning        Type = "budget_warning"
	BudgetExceeded       Type = "budget_exceeded"
	ErrorOccurred        Type = "error_occurred"
	RetryAttempted       Type = "retry_attempted"
	CircuitBreakerOpened Type = "circuit_breaker_opened"
	CircuitBreakerClosed Type = "circuit_breaker_closed"
	RoutingDecision      Type = "routing_decision"
	MetricsSnapshot      Type = "metrics_snapshot"
)

// Event is the uniform envelope every event carries (§4.11, §6).
type Event struct {
	Type      Type                   `json:"event_type"`
	Timestamp float64                `json:"timestamp"` // epoch seconds, float — §6
	Payload   map[string]interface{} `json:"payload"`
}

// New builds an Event stamped with now.
func New(t Type, now time.Time, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		Type:      t,
		Timestamp: float64(now.UnixNano()) / 1e9,
		Payload:   payload,
	}
}
