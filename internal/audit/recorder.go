package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/rs/zerolog"
)

// Recorder emits the structured audit entries consumed by external
// logging/alerting: job creation, completion, failure, cancellation and
// skipped automatic triggers.
type Recorder interface {
	JobCreated(ctx context.Context, job models.ReanalysisJob) error
	JobCompleted(ctx context.Context, job models.ReanalysisJob) error
	JobFailed(ctx context.Context, job models.ReanalysisJob, reason string) error
	JobCancelled(ctx context.Context, job models.ReanalysisJob) error
	TriggerSkipped(ctx context.Context, eventType, reason string) error
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

type recorder struct {
	repo   repository.AuditRepository
	logger zerolog.Logger
}

func NewRecorder(repo repository.AuditRepository, logger zerolog.Logger) Recorder {
	return &recorder{
		repo:   repo,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

func (r *recorder) JobCreated(ctx context.Context, job models.ReanalysisJob) error {
	entry, err := r.entryForJob(models.AuditJobCreated, job, nil)
	if err != nil {
		return err
	}
	r.logger.Info().
		Str("job_id", job.ID).
		Str("trigger_type", string(job.TriggerType)).
		Str("actor", entry.Actor).
		Msg("Job created")
	_, err = r.repo.Create(ctx, entry)
	return err
}

func (r *recorder) JobCompleted(ctx context.Context, job models.ReanalysisJob) error {
	degraded := job.Statistics.ErrorRatio(job.ProcessedCount) > models.DegradedErrorRatio
	metadata := map[string]interface{}{
		"processed_count": job.ProcessedCount,
		"total_count":     job.TotalCount,
		"degraded":        degraded,
	}
	entry, err := r.entryForJob(models.AuditJobCompleted, job, metadata)
	if err != nil {
		return err
	}

	evt := r.logger.Info()
	if degraded {
		// High error ratio is the alerting signal for downstream systems.
		evt = r.logger.Warn().Bool("degraded", true)
	}
	evt.
		Str("job_id", job.ID).
		Int64("processed", job.ProcessedCount).
		Int64("errors", job.Statistics.ErrorsCount).
		Msg("Job completed")
	_, err = r.repo.Create(ctx, entry)
	return err
}

func (r *recorder) JobFailed(ctx context.Context, job models.ReanalysisJob, reason string) error {
	entry, err := r.entryForJob(models.AuditJobFailed, job, map[string]interface{}{"reason": reason})
	if err != nil {
		return err
	}
	r.logger.Error().
		Str("job_id", job.ID).
		Str("reason", reason).
		Msg("Job failed")
	_, err = r.repo.Create(ctx, entry)
	return err
}

func (r *recorder) JobCancelled(ctx context.Context, job models.ReanalysisJob) error {
	entry, err := r.entryForJob(models.AuditJobCancelled, job, nil)
	if err != nil {
		return err
	}
	r.logger.Info().
		Str("job_id", job.ID).
		Int64("processed", job.ProcessedCount).
		Msg("Job cancelled")
	_, err = r.repo.Create(ctx, entry)
	return err
}

func (r *recorder) TriggerSkipped(ctx context.Context, eventType, reason string) error {
	metadata, err := json.Marshal(map[string]interface{}{
		"event_type": eventType,
		"reason":     reason,
	})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	r.logger.Warn().
		Str("event_type", eventType).
		Str("reason", reason).
		Msg("Automatic trigger skipped")
	_, err = r.repo.Create(ctx, models.AuditEntry{
		EventType: models.AuditTriggerSkipped,
		Actor:     models.SystemActor,
		Metadata:  metadata,
	})
	return err
}

func (r *recorder) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	return r.repo.ListRecent(ctx, limit)
}

func (r *recorder) entryForJob(eventType models.AuditEventType, job models.ReanalysisJob, metadata map[string]interface{}) (models.AuditEntry, error) {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("marshal parameters: %w", err)
	}
	stats, err := json.Marshal(job.Statistics)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("marshal statistics: %w", err)
	}

	actor := job.TriggeredBy
	if actor == "" {
		actor = models.SystemActor
	}

	entry := models.AuditEntry{
		EventType:  eventType,
		JobID:      &job.ID,
		Actor:      actor,
		Parameters: params,
		Statistics: stats,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return models.AuditEntry{}, fmt.Errorf("marshal metadata: %w", err)
		}
		entry.Metadata = raw
	}
	return entry, nil
}
