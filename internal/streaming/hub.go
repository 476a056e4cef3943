package streaming

import "context"

// StreamEvent is a real-time event emitted during workflow execution.
// EventType is one of the schema.Event* names; Payload carries the
// event-shaped body (execution status, step status, notify message,
// approval request).
type StreamEvent struct {
	ExecutionID string `json:"execution_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	EventType   string `json:"event_type"`
	Payload     any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ExecutionID string   `json:"execution_id,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time workflow events. Delivery is
// at-most-once per currently connected subscriber; reconnecting clients
// recover state through the store read path, not by replay.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
