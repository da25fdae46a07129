package models

import "time"

// Run statuses recorded in the ledger.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run represents a row in the PostgreSQL pipeline_runs table.
type Run struct {
	ID         string    `json:"id"`
	Niche      string    `json:"niche"`
	CacheKey   string    `json:"cache_key"`
	CacheHit   bool      `json:"cache_hit"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
