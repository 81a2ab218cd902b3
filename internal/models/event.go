package models

import (
	"encoding/json"
	"time"
)

// Lifecycle event types published by the external tool registry.
const (
	EventToolCreated       = "tool.created"
	EventToolStatusChanged = "tool.status_changed"
	EventToolMerged        = "tool.merged"
)

// EventEnvelope is the wire shape of a registry lifecycle event.
type EventEnvelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

type ToolCreatedEvent struct {
	ToolID string     `json:"tool_id"`
	Status ToolStatus `json:"status"`
}

type ToolStatusChangedEvent struct {
	ToolID    string     `json:"tool_id"`
	OldStatus ToolStatus `json:"old_status"`
	NewStatus ToolStatus `json:"new_status"`
}

type ToolMergedEvent struct {
	SourceToolIDs []string `json:"source_tool_ids"`
	TargetToolID  string   `json:"target_tool_id"`
}
