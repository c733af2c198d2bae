// Package store persists verdicts and refresh attempts, and supplies subject
// profiles to the orchestrator.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/model"
)

// ErrSubjectNotFound is returned by GetSubject for an unknown id.
var ErrSubjectNotFound = eris.New("store: subject not found")

// ResultStore receives verdicts and refresh attempts. SaveVerdict is
// idempotent on the verdict ID.
type ResultStore interface {
	SaveVerdict(ctx context.Context, v model.Verdict) error
	SaveRefreshAttempt(ctx context.Context, a model.RefreshAttempt) error
}

// SubjectProvider resolves subject profiles.
type SubjectProvider interface {
	GetSubject(ctx context.Context, id string) (*model.Subject, error)
}

// VerdictFilter selects verdicts for listing.
type VerdictFilter struct {
	SubjectID string              `json:"subject_id,omitempty"`
	Type      string              `json:"verification_type,omitempty"`
	Status    model.VerdictStatus `json:"status,omitempty"`
	BatchID   string              `json:"batch_id,omitempty"`
	Limit     int                 `json:"limit,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

func (f VerdictFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 1000
	}
	return f.Limit
}

// Summary aggregates stored verdicts.
type Summary struct {
	TotalChecks int            `json:"total_checks"`
	ByStatus    map[string]int `json:"by_status"`
	ByType      map[string]int `json:"by_type"`
}

func newSummary() *Summary {
	return &Summary{ByStatus: map[string]int{}, ByType: map[string]int{}}
}

func (s *Summary) add(status, verificationType string, n int) {
	s.TotalChecks += n
	s.ByStatus[status] += n
	s.ByType[verificationType] += n
}

// Store is the full persistence surface used by the CLI and API.
type Store interface {
	ResultStore
	SubjectProvider

	// PutSubjects inserts or replaces subject profiles.
	PutSubjects(ctx context.Context, subjects []model.Subject) (int, error)
	ListSubjects(ctx context.Context, limit int) ([]model.Subject, error)

	// ListVerdicts returns verdicts newest first.
	ListVerdicts(ctx context.Context, filter VerdictFilter) ([]model.Verdict, error)
	Summary(ctx context.Context) (*Summary, error)
	// LatestRefreshes returns the newest attempt per source.
	LatestRefreshes(ctx context.Context) ([]model.RefreshAttempt, error)

	Migrate(ctx context.Context) error
	Close() error
}

func durationMillis(d time.Duration) int64 { return d.Milliseconds() }

func millisDuration(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
