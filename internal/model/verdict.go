package model

import "time"

// VerdictStatus is the outcome of one (subject, verification type) check.
type VerdictStatus string

const (
	StatusPending VerdictStatus = "pending"
	StatusPassed  VerdictStatus = "passed"
	StatusFailed  VerdictStatus = "failed"
	StatusError   VerdictStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s VerdictStatus) Terminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusError
}

// Verdict is the persisted result of one check. It is created once and never
// edited; a re-run produces a new Verdict.
type Verdict struct {
	ID         string           `json:"id"`
	SubjectID  string           `json:"subject_id"`
	Type       string           `json:"verification_type"`
	Status     VerdictStatus    `json:"status"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
	Details    map[string]any   `json:"results"`
	Error      string           `json:"error_message,omitempty"`
	CheckedAt  time.Time        `json:"checked_at"`
	DataSource string           `json:"data_source,omitempty"`
	BatchID    string           `json:"batch_id,omitempty"`
}

// BatchJob is a transient batch request. It is never persisted by the engine.
type BatchJob struct {
	ID         string   `json:"id"`
	SubjectIDs []string `json:"subject_ids"`
	Types      []string `json:"verification_types"`
}
