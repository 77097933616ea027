package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun records one full pipeline execution for a query.
type ScrapeRun struct {
	ID            int64      `json:"id" db:"id"`
	TraceID       string     `json:"trace_id" db:"trace_id"`
	Query         string     `json:"query" db:"query"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	ActiveCount   int        `json:"active_count" db:"active_count"`
	SoldCount     int        `json:"sold_count" db:"sold_count"`
	Delivered     int        `json:"delivered" db:"delivered"`
	SkippedItems  int        `json:"skipped_items" db:"skipped_items"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
}

// TrackedQuery is a search query the scheduler sweeps on a cadence.
type TrackedQuery struct {
	ID        int64      `json:"id" db:"id"`
	Query     string     `json:"query" db:"query"`
	Enabled   bool       `json:"enabled" db:"enabled"`
	LastRunAt *time.Time `json:"last_run_at" db:"last_run_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
