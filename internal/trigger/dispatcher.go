package trigger

import (
	"context"
	"errors"

	"github.com/devpulse/sentiment-api/internal/audit"
	"github.com/devpulse/sentiment-api/internal/events"
	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/rs/zerolog"
)

// Dispatcher turns tool-registry lifecycle events into automatic jobs.
// Automatic triggers are best-effort: when another job holds the active
// slot the trigger is skipped and audited, never queued or retried.
type Dispatcher struct {
	service *Service
	audit   audit.Recorder
	logger  zerolog.Logger
}

func NewDispatcher(service *Service, recorder audit.Recorder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		service: service,
		audit:   recorder,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// HandleEvent implements events.Handler. A non-nil return requeues the
// message, so only infrastructure errors propagate; skips and malformed
// events are swallowed after logging.
func (d *Dispatcher) HandleEvent(ctx context.Context, env models.EventEnvelope) error {
	switch env.Type {
	case models.EventToolCreated:
		evt, err := events.DecodeToolCreated(env)
		if err != nil {
			d.logger.Error().Err(err).Msg("Dropping malformed tool.created event")
			return nil
		}
		if evt.Status != models.ToolStatusActive {
			return nil
		}
		return d.rescanTool(ctx, env.Type, evt.ToolID)

	case models.EventToolStatusChanged:
		evt, err := events.DecodeToolStatusChanged(env)
		if err != nil {
			d.logger.Error().Err(err).Msg("Dropping malformed tool.status_changed event")
			return nil
		}
		if evt.OldStatus != models.ToolStatusArchived || evt.NewStatus != models.ToolStatusActive {
			return nil
		}
		return d.rescanTool(ctx, env.Type, evt.ToolID)

	case models.EventToolMerged:
		evt, err := events.DecodeToolMerged(env)
		if err != nil {
			d.logger.Error().Err(err).Msg("Dropping malformed tool.merged event")
			return nil
		}
		return d.mergeUpdate(ctx, env.Type, evt)

	default:
		d.logger.Debug().Str("event_type", env.Type).Msg("Ignoring unhandled lifecycle event")
		return nil
	}
}

// rescanTool scans all history for a single tool: full date range, scope
// limited to the new tool's canonical ID.
func (d *Dispatcher) rescanTool(ctx context.Context, eventType, toolID string) error {
	job, err := d.service.CreateJob(ctx, CreateRequest{
		Type:        models.JobTypeReanalysis,
		TriggerType: models.TriggerAutomatic,
		TriggeredBy: models.SystemActor,
		Parameters: models.JobParameters{
			ToolIDs:   []string{toolID},
			BatchSize: models.DefaultBatchSize,
		},
	})
	return d.afterCreate(ctx, eventType, job, err)
}

// mergeUpdate creates the targeted set-rewrite job; it never re-runs
// detection.
func (d *Dispatcher) mergeUpdate(ctx context.Context, eventType string, evt models.ToolMergedEvent) error {
	job, err := d.service.CreateJob(ctx, CreateRequest{
		Type:        models.JobTypeMergeUpdate,
		TriggerType: models.TriggerAutomatic,
		TriggeredBy: models.SystemActor,
		Parameters: models.JobParameters{
			SourceToolIDs: evt.SourceToolIDs,
			TargetToolID:  evt.TargetToolID,
			BatchSize:     models.DefaultBatchSize,
		},
	})
	return d.afterCreate(ctx, eventType, job, err)
}

func (d *Dispatcher) afterCreate(ctx context.Context, eventType string, job models.ReanalysisJob, err error) error {
	switch {
	case err == nil:
		d.logger.Info().Str("event_type", eventType).Str("job_id", job.ID).Msg("Automatic job created")
		return nil
	case errors.Is(err, repository.ErrJobConflict):
		if auditErr := d.audit.TriggerSkipped(ctx, eventType, "job already active"); auditErr != nil {
			d.logger.Error().Err(auditErr).Msg("Failed to record trigger skip")
		}
		return nil
	case models.IsValidationError(err):
		d.logger.Error().Err(err).Str("event_type", eventType).Msg("Dropping event with invalid job parameters")
		return nil
	default:
		return err
	}
}
