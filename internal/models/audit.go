package models

import (
	"encoding/json"
	"time"
)

type AuditEventType string

const (
	AuditJobCreated     AuditEventType = "job_created"
	AuditJobCompleted   AuditEventType = "job_completed"
	AuditJobFailed      AuditEventType = "job_failed"
	AuditJobCancelled   AuditEventType = "job_cancelled"
	AuditTriggerSkipped AuditEventType = "trigger_skipped"
)

// SystemActor identifies automatic triggers in audit entries where no
// admin user is involved.
const SystemActor = "system"

// AuditEntry is the structured record emitted for external
// logging/alerting on job creation, completion and failure.
type AuditEntry struct {
	ID         string          `json:"id" db:"id"`
	EventType  AuditEventType  `json:"event_type" db:"event_type"`
	JobID      *string         `json:"job_id,omitempty" db:"job_id"`
	Actor      string          `json:"actor" db:"actor"`
	Parameters json.RawMessage `json:"parameters,omitempty" db:"parameters"`
	Statistics json.RawMessage `json:"statistics,omitempty" db:"statistics"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
