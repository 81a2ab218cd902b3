package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/lib/pq"
)

// ContentRepository is the scanner/writer over sentiment-scored content.
// Scans are read-only, ordered ascending by id and resumable from a
// cursor; the only write path touches the three association fields.
type ContentRepository interface {
	Count(ctx context.Context, filter models.ContentFilter) (int64, error)
	ListBatch(ctx context.Context, filter models.ContentFilter, afterID int64, limit int) ([]models.ContentRecord, error)

	UpdateAssociations(ctx context.Context, id int64, toolIDs []string, analyzedAt time.Time, version int) error

	// Merge-candidate scans cover records whose detected set overlaps the
	// merged source tools.
	CountMergeCandidates(ctx context.Context, sourceToolIDs []string) (int64, error)
	ListMergeCandidates(ctx context.Context, sourceToolIDs []string, afterID int64, limit int) ([]models.ContentRecord, error)
}

type contentRepository struct {
	db *sql.DB
}

func NewContentRepository(db *sql.DB) ContentRepository {
	return &contentRepository{db: db}
}

const contentColumns = `
	id, source, body, sentiment_score, posted_at,
	detected_tool_ids, last_analyzed_at, analysis_version
`

func dateClauses(filter models.ContentFilter, args *[]interface{}) string {
	clause := ""
	if filter.DateFrom != nil {
		*args = append(*args, *filter.DateFrom)
		clause += fmt.Sprintf(" AND posted_at >= $%d", len(*args))
	}
	if filter.DateTo != nil {
		*args = append(*args, *filter.DateTo)
		clause += fmt.Sprintf(" AND posted_at <= $%d", len(*args))
	}
	return clause
}

func (r *contentRepository) Count(ctx context.Context, filter models.ContentFilter) (int64, error) {
	args := []interface{}{}
	query := `SELECT COUNT(*) FROM content_records WHERE 1=1` + dateClauses(filter, &args)

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count content records: %w", err)
	}
	return count, nil
}

func (r *contentRepository) ListBatch(ctx context.Context, filter models.ContentFilter, afterID int64, limit int) ([]models.ContentRecord, error) {
	args := []interface{}{afterID}
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE id > $1` + dateClauses(filter, &args)
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", len(args))

	return r.queryRecords(ctx, query, args...)
}

func (r *contentRepository) UpdateAssociations(ctx context.Context, id int64, toolIDs []string, analyzedAt time.Time, version int) error {
	if toolIDs == nil {
		toolIDs = []string{}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE content_records
		SET detected_tool_ids = $2, last_analyzed_at = $3, analysis_version = $4
		WHERE id = $1
	`, id, pq.Array(toolIDs), analyzedAt, version)
	if err != nil {
		return fmt.Errorf("failed to update associations for record %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("content record %d not found", id)
	}
	return nil
}

func (r *contentRepository) CountMergeCandidates(ctx context.Context, sourceToolIDs []string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM content_records WHERE detected_tool_ids && $1
	`, pq.Array(sourceToolIDs)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count merge candidates: %w", err)
	}
	return count, nil
}

func (r *contentRepository) ListMergeCandidates(ctx context.Context, sourceToolIDs []string, afterID int64, limit int) ([]models.ContentRecord, error) {
	query := `
		SELECT ` + contentColumns + `
		FROM content_records
		WHERE id > $1 AND detected_tool_ids && $2
		ORDER BY id ASC
		LIMIT $3
	`
	return r.queryRecords(ctx, query, afterID, pq.Array(sourceToolIDs), limit)
}

func (r *contentRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]models.ContentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan content records: %w", err)
	}
	defer rows.Close()

	var records []models.ContentRecord
	for rows.Next() {
		var (
			rec        models.ContentRecord
			toolIDs    pq.StringArray
			analyzedAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Source,
			&rec.Body,
			&rec.SentimentScore,
			&rec.PostedAt,
			&toolIDs,
			&analyzedAt,
			&rec.AnalysisVersion,
		); err != nil {
			return nil, err
		}
		rec.DetectedToolIDs = []string(toolIDs)
		if analyzedAt.Valid {
			t := analyzedAt.Time
			rec.LastAnalyzedAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
