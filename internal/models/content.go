package models

import "time"

// ContentRecord is a previously sentiment-scored piece of community
// content. The reanalysis engine only ever rewrites DetectedToolIDs,
// LastAnalyzedAt and AnalysisVersion; body and score are owned by the
// ingestion pipeline.
type ContentRecord struct {
	ID              int64      `json:"id" db:"id"`
	Source          string     `json:"source" db:"source"`
	Body            string     `json:"body" db:"body"`
	SentimentScore  float64    `json:"sentiment_score" db:"sentiment_score"`
	PostedAt        time.Time  `json:"posted_at" db:"posted_at"`
	DetectedToolIDs []string   `json:"detected_tool_ids" db:"detected_tool_ids"`
	LastAnalyzedAt  *time.Time `json:"last_analyzed_at,omitempty" db:"last_analyzed_at"`
	AnalysisVersion int        `json:"analysis_version" db:"analysis_version"`
}

// ContentFilter narrows a scan to a posting-date window. Zero values mean
// unbounded.
type ContentFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
}

func (f ContentFilter) Matches(rec ContentRecord) bool {
	if f.DateFrom != nil && rec.PostedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && rec.PostedAt.After(*f.DateTo) {
		return false
	}
	return true
}
