package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/google/uuid"
)

type AuditRepository interface {
	Create(ctx context.Context, entry models.AuditEntry) (models.AuditEntry, error)
	ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error)
	ListForJob(ctx context.Context, jobID string) ([]models.AuditEntry, error)
}

type auditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry models.AuditEntry) (models.AuditEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Actor == "" {
		entry.Actor = models.SystemActor
	}

	const query = `
		INSERT INTO audit_log (id, event_type, job_id, actor, parameters, statistics, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.EventType,
		entry.JobID,
		entry.Actor,
		nullableJSON(entry.Parameters),
		nullableJSON(entry.Statistics),
		nullableJSON(entry.Metadata),
	).Scan(&entry.CreatedAt)
	if err != nil {
		return models.AuditEntry{}, fmt.Errorf("failed to persist audit entry: %w", err)
	}
	return entry, nil
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	const query = `
		SELECT id, event_type, job_id, actor, parameters, statistics, metadata, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

func (r *auditRepository) ListForJob(ctx context.Context, jobID string) ([]models.AuditEntry, error) {
	const query = `
		SELECT id, event_type, job_id, actor, parameters, statistics, metadata, created_at
		FROM audit_log
		WHERE job_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

func scanAuditEntries(rows *sql.Rows) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	for rows.Next() {
		var (
			entry    models.AuditEntry
			jobID    sql.NullString
			params   []byte
			stats    []byte
			metadata []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.EventType,
			&jobID,
			&entry.Actor,
			&params,
			&stats,
			&metadata,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if jobID.Valid {
			val := jobID.String
			entry.JobID = &val
		}
		if len(params) > 0 {
			entry.Parameters = params
		}
		if len(stats) > 0 {
			entry.Statistics = stats
		}
		if len(metadata) > 0 {
			entry.Metadata = metadata
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
