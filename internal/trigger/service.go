package trigger

import (
	"context"
	"errors"
	"strings"

	"github.com/devpulse/sentiment-api/internal/audit"
	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/rs/zerolog"
)

// Service is the single job-creation path. Manual HTTP triggers and the
// automatic dispatcher both go through it, so validation, the concurrency
// guard and audit behave identically for either origin.
type Service struct {
	jobs   repository.JobRepository
	tools  repository.ToolRepository
	audit  audit.Recorder
	logger zerolog.Logger
}

func NewService(jobs repository.JobRepository, tools repository.ToolRepository, recorder audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		jobs:   jobs,
		tools:  tools,
		audit:  recorder,
		logger: logger.With().Str("component", "trigger").Logger(),
	}
}

type CreateRequest struct {
	Type        models.JobType
	TriggerType models.TriggerType
	TriggeredBy string
	Parameters  models.JobParameters
}

// CreateJob validates the request, claims the single active-job slot and
// persists a queued job. It returns repository.ErrJobConflict when another
// job is active and *models.ValidationError for bad parameters; neither
// leaves a job row behind.
func (s *Service) CreateJob(ctx context.Context, req CreateRequest) (models.ReanalysisJob, error) {
	if req.Type == "" {
		req.Type = models.JobTypeReanalysis
	}
	if req.TriggerType == "" {
		req.TriggerType = models.TriggerManual
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.SystemActor
	}
	if req.Parameters.BatchSize == 0 {
		req.Parameters.BatchSize = models.DefaultBatchSize
	}

	if err := s.validate(ctx, req); err != nil {
		return models.ReanalysisJob{}, err
	}

	job := models.ReanalysisJob{
		Type:        req.Type,
		Status:      models.JobStatusQueued,
		TriggerType: req.TriggerType,
		TriggeredBy: req.TriggeredBy,
		Parameters:  req.Parameters,
	}

	if req.Parameters.ResumeFromJobID != "" {
		prior, err := s.jobs.Get(ctx, req.Parameters.ResumeFromJobID)
		if err != nil {
			if errors.Is(err, repository.ErrJobNotFound) {
				return models.ReanalysisJob{}, models.NewValidationError("resume_from_job_id %s does not exist", req.Parameters.ResumeFromJobID)
			}
			return models.ReanalysisJob{}, err
		}
		job.LastCheckpointCursor = prior.LastCheckpointCursor
	}

	created, err := s.jobs.Create(ctx, job)
	if err != nil {
		return models.ReanalysisJob{}, err
	}

	if auditErr := s.audit.JobCreated(ctx, created); auditErr != nil {
		s.logger.Error().Err(auditErr).Str("job_id", created.ID).Msg("Failed to record job creation audit entry")
	}
	return created, nil
}

// CancelJob requests cooperative cancellation; the processor observes the
// flag at the next checkpoint boundary.
func (s *Service) CancelJob(ctx context.Context, id, actor string) error {
	if err := s.jobs.RequestCancel(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("job_id", id).Str("actor", actor).Msg("Cancellation requested")
	return nil
}

func (s *Service) validate(ctx context.Context, req CreateRequest) error {
	if err := req.Parameters.Validate(); err != nil {
		return err
	}

	switch req.Type {
	case models.JobTypeReanalysis:
		if len(req.Parameters.SourceToolIDs) > 0 || req.Parameters.TargetToolID != "" {
			return models.NewValidationError("source/target tool ids are only valid for merge_update jobs")
		}
	case models.JobTypeMergeUpdate:
		if len(req.Parameters.SourceToolIDs) == 0 || req.Parameters.TargetToolID == "" {
			return models.NewValidationError("merge_update jobs require source_tool_ids and target_tool_id")
		}
	default:
		return models.NewValidationError("unknown job type %q", req.Type)
	}

	var refs []string
	refs = append(refs, req.Parameters.ToolIDs...)
	refs = append(refs, req.Parameters.SourceToolIDs...)
	if req.Parameters.TargetToolID != "" {
		refs = append(refs, req.Parameters.TargetToolID)
	}
	if len(refs) == 0 {
		return nil
	}

	missing, err := s.tools.MissingToolIDs(ctx, refs)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return models.NewValidationError("unknown tool ids: %s", strings.Join(missing, ", "))
	}
	return nil
}
