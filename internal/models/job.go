package models

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerAutomatic TriggerType = "automatic"
)

type JobType string

const (
	// JobTypeReanalysis runs detection and alias resolution over content.
	JobTypeReanalysis JobType = "reanalysis"
	// JobTypeMergeUpdate rewrites tool-ID sets after a registry merge
	// without re-running detection.
	JobTypeMergeUpdate JobType = "merge_update"
)

// validTransitions encodes the monotonic job state machine:
// queued -> running -> {completed, failed, cancelled}. Terminal states
// have no successors.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

const (
	MinBatchSize     = 1
	MaxBatchSize     = 1000
	DefaultBatchSize = 100
)

// JobParameters describes the scope of a reanalysis job. ToolIDs limits
// which canonical tools the job may rewrite associations for; an empty set
// means full replacement. SourceToolIDs/TargetToolID are only set for
// merge_update jobs.
type JobParameters struct {
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
	ToolIDs         []string   `json:"tool_ids,omitempty"`
	SourceToolIDs   []string   `json:"source_tool_ids,omitempty"`
	TargetToolID    string     `json:"target_tool_id,omitempty"`
	BatchSize       int        `json:"batch_size"`
	ResumeFromJobID string     `json:"resume_from_job_id,omitempty"`
}

func (p *JobParameters) Validate() error {
	if p.BatchSize < MinBatchSize || p.BatchSize > MaxBatchSize {
		return NewValidationError("batch_size must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, p.BatchSize)
	}
	if p.DateFrom != nil && p.DateTo != nil && p.DateTo.Before(*p.DateFrom) {
		return NewValidationError("date_to %s precedes date_from %s", p.DateTo.Format(time.RFC3339), p.DateFrom.Format(time.RFC3339))
	}
	return nil
}

func (p *JobParameters) Filter() ContentFilter {
	return ContentFilter{DateFrom: p.DateFrom, DateTo: p.DateTo}
}

// JobStatistics accumulates per-run counters. ToolCounts maps canonical
// tool IDs to the number of records they were detected in.
type JobStatistics struct {
	ToolCounts         map[string]int64 `json:"tool_counts,omitempty"`
	ErrorsCount        int64            `json:"errors_count"`
	CategorizedCount   int64            `json:"categorized_count"`
	UncategorizedCount int64            `json:"uncategorized_count"`
}

func (s *JobStatistics) AddTool(toolID string) {
	if s.ToolCounts == nil {
		s.ToolCounts = make(map[string]int64)
	}
	s.ToolCounts[toolID]++
}

// ErrorRatio reports the fraction of processed records that failed.
func (s *JobStatistics) ErrorRatio(processed int64) float64 {
	if processed <= 0 {
		return 0
	}
	return float64(s.ErrorsCount) / float64(processed)
}

// DegradedErrorRatio is the threshold above which a completed job is
// flagged for external alerting.
const DegradedErrorRatio = 0.2

type JobError struct {
	RecordID  int64     `json:"record_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type ReanalysisJob struct {
	ID                   string        `json:"id" db:"id"`
	Type                 JobType       `json:"type" db:"job_type"`
	Status               JobStatus     `json:"status" db:"status"`
	TriggerType          TriggerType   `json:"trigger_type" db:"trigger_type"`
	TriggeredBy          string        `json:"triggered_by" db:"triggered_by"`
	Parameters           JobParameters `json:"parameters" db:"parameters"`
	TotalCount           int64         `json:"total_count" db:"total_count"`
	ProcessedCount       int64         `json:"processed_count" db:"processed_count"`
	LastCheckpointCursor int64         `json:"last_checkpoint_cursor" db:"last_checkpoint_cursor"`
	Statistics           JobStatistics `json:"statistics" db:"statistics"`
	ErrorLog             []JobError    `json:"error_log" db:"error_log"`
	CancelRequested      bool          `json:"cancel_requested" db:"cancel_requested"`
	FailureReason        *string       `json:"failure_reason,omitempty" db:"failure_reason"`
	StartTime            *time.Time    `json:"start_time,omitempty" db:"start_time"`
	EndTime              *time.Time    `json:"end_time,omitempty" db:"end_time"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at" db:"updated_at"`
}

// Percentage derives progress from the counters, clamped to [0, 100].
func (j *ReanalysisJob) Percentage() float64 {
	if j.TotalCount <= 0 {
		if j.Status == JobStatusCompleted {
			return 100
		}
		return 0
	}
	pct := 100 * float64(j.ProcessedCount) / float64(j.TotalCount)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (j *ReanalysisJob) String() string {
	return fmt.Sprintf("job %s (%s/%s, status=%s)", j.ID, j.Type, j.TriggerType, j.Status)
}
