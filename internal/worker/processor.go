package worker

import (
	"context"
	"sort"
	"time"

	"github.com/devpulse/sentiment-api/internal/analysis"
	"github.com/devpulse/sentiment-api/internal/audit"
	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/devpulse/sentiment-api/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Config tunes the checkpoint engine. CheckpointInterval is K: progress
// and cursor are persisted after every K processed records, so a crash
// loses at most K-1 records of progress.
type Config struct {
	CheckpointInterval int
	AnalysisVersion    int
	WriteRetryBase     time.Duration
	WriteRetryJitter   time.Duration
	WriteMaxRetries    uint64
}

// Processor drives one claimed job from running to a terminal state:
// batched scans in id order, per-record catch-log-continue, periodic
// checkpoints and cooperative cancellation at checkpoint boundaries.
type Processor struct {
	jobs     repository.JobRepository
	content  repository.ContentRepository
	tools    repository.ToolRepository
	detector analysis.Detector
	audit    audit.Recorder
	cfg      Config
	logger   zerolog.Logger
}

// NewProcessor wires the engine. detector may be nil, in which case a
// keyword detector seeded from the registry snapshot is used per run.
func NewProcessor(
	jobs repository.JobRepository,
	content repository.ContentRepository,
	tools repository.ToolRepository,
	detector analysis.Detector,
	recorder audit.Recorder,
	cfg Config,
	logger zerolog.Logger,
) *Processor {
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 100
	}
	if cfg.AnalysisVersion <= 0 {
		cfg.AnalysisVersion = 1
	}
	if cfg.WriteRetryBase <= 0 {
		cfg.WriteRetryBase = 100 * time.Millisecond
	}
	if cfg.WriteMaxRetries == 0 {
		cfg.WriteMaxRetries = 5
	}
	return &Processor{
		jobs:     jobs,
		content:  content,
		tools:    tools,
		detector: detector,
		audit:    recorder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "processor").Logger(),
	}
}

// runState is the in-memory view of a job's progress between checkpoints.
type runState struct {
	job           models.ReanalysisJob
	processed     int64
	cursor        int64
	stats         models.JobStatistics
	pendingErrors []models.JobError
}

// Run processes a job already in running state until completion, failure
// or cancellation. Per-record failures are logged and skipped; only
// infrastructure errors (store unreachable, scanner failure) are fatal.
func (p *Processor) Run(ctx context.Context, job models.ReanalysisJob) error {
	p.logger.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Msg("Running job")

	// A cancel requested while the job was still queued is honored
	// before any work happens.
	if job.CancelRequested {
		return p.finishCancelled(ctx, job)
	}

	resolver, detector, err := p.registrySnapshot(ctx)
	if err != nil {
		return p.fail(ctx, job, errors.Wrap(err, "failed to load tool registry snapshot"))
	}

	total, err := p.countTotal(ctx, job)
	if err != nil {
		return p.fail(ctx, job, errors.Wrap(err, "failed to count matching records"))
	}
	if err := p.jobs.SetTotalCount(ctx, job.ID, total); err != nil {
		return p.fail(ctx, job, errors.Wrap(err, "failed to persist total count"))
	}

	state := &runState{
		job:       job,
		processed: job.ProcessedCount,
		cursor:    job.LastCheckpointCursor,
		stats:     job.Statistics,
	}

	targets, err := p.targetSet(job, resolver)
	if err != nil {
		return p.fail(ctx, job, err)
	}

	for {
		records, err := p.nextBatch(ctx, job, state.cursor)
		if err != nil {
			return p.fail(ctx, job, errors.Wrap(err, "content scan failed"))
		}
		if len(records) == 0 {
			break
		}

		for _, rec := range records {
			if procErr := p.processRecord(ctx, job, resolver, detector, targets, rec, state); procErr != nil {
				// catch-log-continue: one bad record never aborts the job
				state.stats.ErrorsCount++
				state.pendingErrors = append(state.pendingErrors, models.JobError{
					RecordID:  rec.ID,
					Message:   procErr.Error(),
					Timestamp: time.Now().UTC(),
				})
				p.logger.Warn().
					Err(procErr).
					Str("job_id", job.ID).
					Int64("record_id", rec.ID).
					Msg("Record processing failed")
			}
			state.processed++
			state.cursor = rec.ID

			if state.processed%int64(p.cfg.CheckpointInterval) == 0 {
				if err := p.checkpoint(ctx, state); err != nil {
					return p.fail(ctx, job, errors.Wrap(err, "checkpoint write failed"))
				}
				// Process shutdown leaves the job running; it resumes
				// from this checkpoint on restart.
				if err := ctx.Err(); err != nil {
					return err
				}
				cancelled, err := p.jobs.CancelRequested(ctx, job.ID)
				if err != nil {
					return p.fail(ctx, job, errors.Wrap(err, "failed to read cancellation flag"))
				}
				if cancelled {
					return p.finishCancelled(ctx, job)
				}
			}
		}
	}

	if err := p.checkpoint(ctx, state); err != nil {
		return p.fail(ctx, job, errors.Wrap(err, "final checkpoint write failed"))
	}
	return p.finishCompleted(ctx, job)
}

// registrySnapshot loads tools and aliases once per run so the whole job
// sees a consistent alias graph.
func (p *Processor) registrySnapshot(ctx context.Context) (*analysis.Resolver, analysis.Detector, error) {
	resolver := analysis.NewResolver()
	tools, err := p.tools.ListActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	aliases, err := p.tools.ListAliases(ctx)
	if err != nil {
		return nil, nil, err
	}
	resolver.Load(tools, aliases)

	detector := p.detector
	if detector == nil {
		detector = analysis.NewKeywordDetector(resolver.Names()...)
	}
	return resolver, detector, nil
}

func (p *Processor) countTotal(ctx context.Context, job models.ReanalysisJob) (int64, error) {
	if job.Type == models.JobTypeMergeUpdate {
		return p.content.CountMergeCandidates(ctx, job.Parameters.SourceToolIDs)
	}
	return p.content.Count(ctx, job.Parameters.Filter())
}

func (p *Processor) nextBatch(ctx context.Context, job models.ReanalysisJob, cursor int64) ([]models.ContentRecord, error) {
	if job.Type == models.JobTypeMergeUpdate {
		return p.content.ListMergeCandidates(ctx, job.Parameters.SourceToolIDs, cursor, job.Parameters.BatchSize)
	}
	return p.content.ListBatch(ctx, job.Parameters.Filter(), cursor, job.Parameters.BatchSize)
}

// targetSet canonicalizes a scoped job's tool IDs up front; a cycle in
// the alias graph is fatal here rather than per record.
func (p *Processor) targetSet(job models.ReanalysisJob, resolver *analysis.Resolver) (map[string]bool, error) {
	if job.Type != models.JobTypeReanalysis || len(job.Parameters.ToolIDs) == 0 {
		return nil, nil
	}
	targets := make(map[string]bool, len(job.Parameters.ToolIDs))
	for _, id := range job.Parameters.ToolIDs {
		canonical, err := resolver.Canonical(id)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to canonicalize target tool %s", id)
		}
		targets[canonical] = true
	}
	return targets, nil
}

func (p *Processor) processRecord(
	ctx context.Context,
	job models.ReanalysisJob,
	resolver *analysis.Resolver,
	detector analysis.Detector,
	targets map[string]bool,
	rec models.ContentRecord,
	state *runState,
) error {
	var newSet []string
	switch job.Type {
	case models.JobTypeMergeUpdate:
		newSet = mergeRewrite(rec.DetectedToolIDs, job.Parameters.SourceToolIDs, job.Parameters.TargetToolID)
	default:
		detected, err := analysis.Associations(ctx, detector, resolver, rec.Body)
		if err != nil {
			return err
		}
		if len(targets) > 0 {
			newSet = scopedReplacement(rec.DetectedToolIDs, detected, targets)
		} else {
			newSet = detected
		}
	}

	if err := p.writeAssociations(ctx, rec.ID, newSet); err != nil {
		return err
	}

	if len(newSet) > 0 {
		state.stats.CategorizedCount++
		for _, id := range newSet {
			state.stats.AddTool(id)
		}
	} else {
		state.stats.UncategorizedCount++
	}
	return nil
}

// writeAssociations retries transient storage throttling with exponential
// backoff plus jitter. Checkpoints already persisted are never touched by
// the retry path.
func (p *Processor) writeAssociations(ctx context.Context, recordID int64, toolIDs []string) error {
	backoff := retry.NewExponential(p.cfg.WriteRetryBase)
	if p.cfg.WriteRetryJitter > 0 {
		backoff = retry.WithJitter(p.cfg.WriteRetryJitter, backoff)
	}
	backoff = retry.WithMaxRetries(p.cfg.WriteMaxRetries, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.content.UpdateAssociations(ctx, recordID, toolIDs, time.Now().UTC(), p.cfg.AnalysisVersion); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// checkpoint persists processed count, cursor and statistics atomically,
// then flushes any buffered per-record errors.
func (p *Processor) checkpoint(ctx context.Context, state *runState) error {
	if err := p.jobs.UpdateProgress(ctx, state.job.ID, state.processed, state.cursor, state.stats); err != nil {
		return err
	}
	if len(state.pendingErrors) > 0 {
		if err := p.jobs.AppendErrors(ctx, state.job.ID, state.pendingErrors); err != nil {
			return err
		}
		state.pendingErrors = nil
	}
	return nil
}

func (p *Processor) finishCompleted(ctx context.Context, job models.ReanalysisJob) error {
	if err := p.jobs.TransitionStatus(ctx, job.ID, models.JobStatusRunning, models.JobStatusCompleted); err != nil {
		return errors.Wrapf(err, "failed to complete job %s", job.ID)
	}
	p.recordTerminal(ctx, job.ID, models.JobStatusCompleted, "")
	return nil
}

func (p *Processor) finishCancelled(ctx context.Context, job models.ReanalysisJob) error {
	if err := p.jobs.TransitionStatus(ctx, job.ID, models.JobStatusRunning, models.JobStatusCancelled); err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", job.ID)
	}
	p.recordTerminal(ctx, job.ID, models.JobStatusCancelled, "")
	return nil
}

func (p *Processor) fail(ctx context.Context, job models.ReanalysisJob, cause error) error {
	if ctx.Err() != nil {
		// Shutdown, not a job failure; the job stays running and
		// resumes from its last checkpoint.
		return ctx.Err()
	}
	if err := p.jobs.SetFailureReason(ctx, job.ID, cause.Error()); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist failure reason")
	}
	if err := p.jobs.TransitionStatus(ctx, job.ID, models.JobStatusRunning, models.JobStatusFailed); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}
	p.recordTerminal(ctx, job.ID, models.JobStatusFailed, cause.Error())
	return errors.Wrapf(cause, "job %s failed", job.ID)
}

// recordTerminal re-reads the job so audit entries carry the final
// persisted counters; audit failures never affect job state.
func (p *Processor) recordTerminal(ctx context.Context, jobID string, status models.JobStatus, reason string) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to reload job for audit")
		return
	}

	switch status {
	case models.JobStatusCompleted:
		err = p.audit.JobCompleted(ctx, job)
	case models.JobStatusCancelled:
		err = p.audit.JobCancelled(ctx, job)
	case models.JobStatusFailed:
		err = p.audit.JobFailed(ctx, job, reason)
	}
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to record audit entry")
	}
}

// mergeRewrite replaces every source tool ID with the merge target,
// deduplicating the result. Records without any source ID are untouched
// by the scan filter and never reach this point.
func mergeRewrite(old, sourceIDs []string, targetID string) []string {
	sources := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		sources[id] = true
	}

	set := make(map[string]bool, len(old))
	for _, id := range old {
		if sources[id] {
			set[targetID] = true
		} else {
			set[id] = true
		}
	}
	return sortedKeys(set)
}

// scopedReplacement rewrites membership only for the job's target tools:
// associations owned by other tools are preserved verbatim.
func scopedReplacement(old, detected []string, targets map[string]bool) []string {
	set := make(map[string]bool, len(old)+len(detected))
	for _, id := range old {
		if !targets[id] {
			set[id] = true
		}
	}
	for _, id := range detected {
		if targets[id] {
			set[id] = true
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
