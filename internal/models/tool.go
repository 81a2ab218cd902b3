package models

import "time"

type ToolStatus string

const (
	ToolStatusActive   ToolStatus = "active"
	ToolStatusArchived ToolStatus = "archived"
)

// Tool is a canonical entry in the external tool registry. The reanalysis
// core reads tools and aliases but never writes them.
type Tool struct {
	ID        string     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Status    ToolStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ToolAlias is a directed edge alias -> primary maintained by the registry
// when tools are merged. The registry guarantees acyclicity; the resolver
// still refuses to follow a cycle.
type ToolAlias struct {
	AliasToolID   string    `json:"alias_tool_id" db:"alias_tool_id"`
	AliasName     string    `json:"alias_name" db:"alias_name"`
	PrimaryToolID string    `json:"primary_tool_id" db:"primary_tool_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
