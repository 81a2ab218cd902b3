package worker

import (
	"context"
	"time"

	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Worker is the single logical job runner: it polls for queued jobs,
// claims them one at a time and drives each through the processor. Cross-
// process exclusivity comes from the job store's claim semantics, not
// from this loop.
type Worker struct {
	jobs         repository.JobRepository
	processor    *Processor
	pollInterval time.Duration
	logger       zerolog.Logger
}

func New(jobs repository.JobRepository, processor *Processor, pollInterval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		jobs:         jobs,
		processor:    processor,
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "worker").Logger(),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Worker started, polling for jobs...")

	// A job left in running state belongs to a process that died between
	// checkpoints; resume it from its persisted cursor before polling.
	if err := w.resumeInterrupted(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Failed to resume interrupted job")
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.runNext(ctx); err != nil {
				// Log and keep polling; the failed job is already terminal.
				w.logger.Error().Err(err).Msg("Job run ended with error")
			}
		}
	}
}

func (w *Worker) resumeInterrupted(ctx context.Context) error {
	job, ok, err := w.jobs.FindRunning(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to look up interrupted jobs")
	}
	if !ok {
		return nil
	}
	w.logger.Info().
		Str("job_id", job.ID).
		Int64("processed", job.ProcessedCount).
		Int64("cursor", job.LastCheckpointCursor).
		Msg("Resuming interrupted job from checkpoint")
	return w.processor.Run(ctx, job)
}

func (w *Worker) runNext(ctx context.Context) error {
	job, ok, err := w.jobs.ClaimNextQueued(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to claim next queued job")
	}
	if !ok {
		return nil
	}
	return w.processor.Run(ctx, job)
}
