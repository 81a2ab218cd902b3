package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/devpulse/sentiment-api/internal/models"
	"github.com/lib/pq"
)

var ErrToolNotFound = errors.New("tool not found")

// ToolRepository reads the external tool registry. The reanalysis core
// never writes tools or aliases; merges and status changes arrive as
// lifecycle events.
type ToolRepository interface {
	Get(ctx context.Context, id string) (models.Tool, error)
	ListActive(ctx context.Context) ([]models.Tool, error)
	ListAliases(ctx context.Context) ([]models.ToolAlias, error)

	// MissingToolIDs returns the subset of ids not present in the
	// registry, for job-parameter validation.
	MissingToolIDs(ctx context.Context, ids []string) ([]string, error)
}

type toolRepository struct {
	db *sql.DB
}

func NewToolRepository(db *sql.DB) ToolRepository {
	return &toolRepository{db: db}
}

func (r *toolRepository) Get(ctx context.Context, id string) (models.Tool, error) {
	var tool models.Tool
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM tools
		WHERE id = $1
	`, id).Scan(&tool.ID, &tool.Name, &tool.Status, &tool.CreatedAt, &tool.UpdatedAt)
	if err == sql.ErrNoRows {
		return tool, ErrToolNotFound
	}
	return tool, err
}

func (r *toolRepository) ListActive(ctx context.Context) ([]models.Tool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, status, created_at, updated_at
		FROM tools
		WHERE status = 'active'
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tools: %w", err)
	}
	defer rows.Close()

	var tools []models.Tool
	for rows.Next() {
		var tool models.Tool
		if err := rows.Scan(&tool.ID, &tool.Name, &tool.Status, &tool.CreatedAt, &tool.UpdatedAt); err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

func (r *toolRepository) ListAliases(ctx context.Context) ([]models.ToolAlias, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT alias_tool_id, alias_name, primary_tool_id, created_at
		FROM tool_aliases
		ORDER BY alias_tool_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool aliases: %w", err)
	}
	defer rows.Close()

	var aliases []models.ToolAlias
	for rows.Next() {
		var alias models.ToolAlias
		if err := rows.Scan(&alias.AliasToolID, &alias.AliasName, &alias.PrimaryToolID, &alias.CreatedAt); err != nil {
			return nil, err
		}
		aliases = append(aliases, alias)
	}
	return aliases, rows.Err()
}

func (r *toolRepository) MissingToolIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT candidate
		FROM unnest($1::text[]) AS candidate
		WHERE candidate NOT IN (SELECT id FROM tools)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to check tool ids: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}
