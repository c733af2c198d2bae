package model

import "time"

// RefreshAttempt summarizes one ingest run for a source.
type RefreshAttempt struct {
	SourceID    string        `json:"source_id"`
	Success     bool          `json:"success"`
	Unchanged   bool          `json:"unchanged,omitempty"`
	RecordCount int           `json:"record_count"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// SourceStatus reports the serving state of one source's index.
type SourceStatus struct {
	SourceID      string     `json:"source_id"`
	Name          string     `json:"name"`
	Loaded        bool       `json:"loaded"`
	RecordCount   int        `json:"record_count"`
	LastRefreshed *time.Time `json:"last_refreshed,omitempty"`
	Status        string     `json:"status"`
}
