package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrJobConflict means another job already holds the single active
	// slot (queued or running).
	ErrJobConflict = errors.New("job already active")

	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition guards the monotonic status machine; it is a
	// programming error in correct operation.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type JobRepository interface {
	// Create persists a new queued job. The insert itself is the
	// concurrency-guard claim: a partial unique index over active
	// statuses makes it fail with ErrJobConflict while any other job is
	// queued or running.
	Create(ctx context.Context, job models.ReanalysisJob) (models.ReanalysisJob, error)
	Get(ctx context.Context, id string) (models.ReanalysisJob, error)
	List(ctx context.Context, status models.JobStatus, trigger models.TriggerType, limit, offset int) ([]models.ReanalysisJob, error)

	// ClaimNextQueued atomically moves the oldest queued job to running
	// and returns it. The second result is false when nothing is queued.
	ClaimNextQueued(ctx context.Context) (models.ReanalysisJob, bool, error)

	// FindRunning returns the job left in running state by a previous
	// process, if any, so the worker can resume it from its checkpoint.
	FindRunning(ctx context.Context) (models.ReanalysisJob, bool, error)

	TransitionStatus(ctx context.Context, id string, from, to models.JobStatus) error
	SetTotalCount(ctx context.Context, id string, total int64) error

	// UpdateProgress persists a checkpoint. Safe to call repeatedly with
	// monotonically increasing processed counts; stale values are ignored.
	UpdateProgress(ctx context.Context, id string, processed, cursor int64, stats models.JobStatistics) error
	AppendErrors(ctx context.Context, id string, errs []models.JobError) error

	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
	SetFailureReason(ctx context.Context, id string, reason string) error
}

type jobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) JobRepository {
	return &jobRepository{db: db}
}

const jobColumns = `
	id, job_type, status, trigger_type, triggered_by, parameters,
	total_count, processed_count, last_checkpoint_cursor, statistics,
	error_log, cancel_requested, failure_reason, start_time, end_time,
	created_at, updated_at
`

func (r *jobRepository) Create(ctx context.Context, job models.ReanalysisJob) (models.ReanalysisJob, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}

	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return job, fmt.Errorf("marshal parameters: %w", err)
	}
	stats, err := json.Marshal(job.Statistics)
	if err != nil {
		return job, fmt.Errorf("marshal statistics: %w", err)
	}

	query := `
		INSERT INTO reanalysis_jobs (id, job_type, status, trigger_type, triggered_by, parameters, total_count, last_checkpoint_cursor, statistics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err = r.db.QueryRowContext(ctx, query,
		job.ID,
		job.Type,
		job.Status,
		job.TriggerType,
		job.TriggeredBy,
		params,
		job.TotalCount,
		job.LastCheckpointCursor,
		stats,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return job, ErrJobConflict
		}
		return job, err
	}
	return job, nil
}

func (r *jobRepository) Get(ctx context.Context, id string) (models.ReanalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM reanalysis_jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return job, ErrJobNotFound
	}
	return job, err
}

func (r *jobRepository) List(ctx context.Context, status models.JobStatus, trigger models.TriggerType, limit, offset int) ([]models.ReanalysisJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + jobColumns + ` FROM reanalysis_jobs WHERE 1=1`
	args := []interface{}{}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if trigger != "" {
		args = append(args, trigger)
		query += fmt.Sprintf(" AND trigger_type = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]models.ReanalysisJob, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *jobRepository) ClaimNextQueued(ctx context.Context) (models.ReanalysisJob, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return models.ReanalysisJob{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id string
	query := `
		SELECT id
		FROM reanalysis_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`
	if err := tx.QueryRowContext(ctx, query).Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return models.ReanalysisJob{}, false, nil
		}
		return models.ReanalysisJob{}, false, fmt.Errorf("failed to fetch next queued job: %w", err)
	}

	claimed, err := scanJob(tx.QueryRowContext(ctx, `
		UPDATE reanalysis_jobs
		SET status = 'running', start_time = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'queued'
		RETURNING `+jobColumns, id))
	if err != nil {
		return models.ReanalysisJob{}, false, fmt.Errorf("failed to claim job %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return models.ReanalysisJob{}, false, fmt.Errorf("failed to commit claim: %w", err)
	}
	return claimed, true, nil
}

func (r *jobRepository) FindRunning(ctx context.Context) (models.ReanalysisJob, bool, error) {
	query := `SELECT ` + jobColumns + ` FROM reanalysis_jobs WHERE status = 'running' LIMIT 1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return models.ReanalysisJob{}, false, nil
	}
	if err != nil {
		return models.ReanalysisJob{}, false, err
	}
	return job, true, nil
}

func (r *jobRepository) TransitionStatus(ctx context.Context, id string, from, to models.JobStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE reanalysis_jobs
		SET status = $1,
		    start_time = CASE WHEN $4 THEN NOW() ELSE start_time END,
		    end_time   = CASE WHEN $5 THEN NOW() ELSE end_time END,
		    updated_at = NOW()
		WHERE id = $2 AND status = $3
	`
	res, err := r.db.ExecContext(ctx, query, to, id, from, to == models.JobStatusRunning, to.IsTerminal())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the job does not exist or it is no longer in `from`.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: job %s is not %s", ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *jobRepository) SetTotalCount(ctx context.Context, id string, total int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reanalysis_jobs SET total_count = $2, updated_at = NOW() WHERE id = $1
	`, id, total)
	return err
}

func (r *jobRepository) UpdateProgress(ctx context.Context, id string, processed, cursor int64, stats models.JobStatistics) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}

	// processed_count <= $2 keeps the counter monotonic under retried
	// checkpoint writes.
	_, err = r.db.ExecContext(ctx, `
		UPDATE reanalysis_jobs
		SET processed_count = $2, last_checkpoint_cursor = $3, statistics = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'running' AND processed_count <= $2
	`, id, processed, cursor, payload)
	return err
}

func (r *jobRepository) AppendErrors(ctx context.Context, id string, errs []models.JobError) error {
	if len(errs) == 0 {
		return nil
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal error log: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE reanalysis_jobs
		SET error_log = error_log || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`, id, payload)
	return err
}

func (r *jobRepository) RequestCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reanalysis_jobs
		SET cancel_requested = TRUE, updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: job %s is already terminal", ErrInvalidTransition, id)
	}
	return nil
}

func (r *jobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.db.QueryRowContext(ctx, `
		SELECT cancel_requested FROM reanalysis_jobs WHERE id = $1
	`, id).Scan(&requested)
	if err == sql.ErrNoRows {
		return false, ErrJobNotFound
	}
	return requested, err
}

func (r *jobRepository) SetFailureReason(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reanalysis_jobs SET failure_reason = $2, updated_at = NOW() WHERE id = $1
	`, id, reason)
	return err
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (models.ReanalysisJob, error) {
	var (
		job           models.ReanalysisJob
		paramsRaw     []byte
		statsRaw      []byte
		errorLogRaw   []byte
		failureReason sql.NullString
		startTime     sql.NullTime
		endTime       sql.NullTime
	)

	if err := scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&job.TriggerType,
		&job.TriggeredBy,
		&paramsRaw,
		&job.TotalCount,
		&job.ProcessedCount,
		&job.LastCheckpointCursor,
		&statsRaw,
		&errorLogRaw,
		&job.CancelRequested,
		&failureReason,
		&startTime,
		&endTime,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return job, err
	}

	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &job.Parameters); err != nil {
			return job, fmt.Errorf("unmarshal parameters: %w", err)
		}
	}
	if len(statsRaw) > 0 {
		if err := json.Unmarshal(statsRaw, &job.Statistics); err != nil {
			return job, fmt.Errorf("unmarshal statistics: %w", err)
		}
	}
	if len(errorLogRaw) > 0 {
		if err := json.Unmarshal(errorLogRaw, &job.ErrorLog); err != nil {
			return job, fmt.Errorf("unmarshal error log: %w", err)
		}
	}
	if failureReason.Valid {
		job.FailureReason = &failureReason.String
	}
	if startTime.Valid {
		t := startTime.Time
		job.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		job.EndTime = &t
	}
	return job, nil
}
