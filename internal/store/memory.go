package store

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/verify-cli/internal/model"
)

// Memory is an in-process Store for tests and one-shot CLI runs.
type Memory struct {
	mu        sync.RWMutex
	subjects  map[string]model.Subject
	order     []string
	verdicts  []model.Verdict
	seen      map[string]bool
	refreshes []model.RefreshAttempt
}

// NewMemory creates an empty Memory store.
func NewMemory(subjects ...model.Subject) *Memory {
	m := &Memory{subjects: map[string]model.Subject{}, seen: map[string]bool{}}
	_, _ = m.PutSubjects(context.Background(), subjects)
	return m
}

func (m *Memory) Migrate(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) GetSubject(_ context.Context, id string) (*model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, ErrSubjectNotFound
	}
	return &s, nil
}

func (m *Memory) PutSubjects(_ context.Context, subjects []model.Subject) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subjects {
		if _, ok := m.subjects[s.ID]; !ok {
			m.order = append(m.order, s.ID)
		}
		m.subjects[s.ID] = s
	}
	return len(subjects), nil
}

func (m *Memory) ListSubjects(_ context.Context, limit int) ([]model.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Subject, 0, len(m.order))
	for _, id := range m.order {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.subjects[id])
	}
	return out, nil
}

func (m *Memory) SaveVerdict(_ context.Context, v model.Verdict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[v.ID] {
		return nil
	}
	m.seen[v.ID] = true
	m.verdicts = append(m.verdicts, v)
	return nil
}

func (m *Memory) SaveRefreshAttempt(_ context.Context, a model.RefreshAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, a)
	return nil
}

func (m *Memory) ListVerdicts(_ context.Context, f VerdictFilter) ([]model.Verdict, error) {
	m.mu.RLock()
	var out []model.Verdict
	for _, v := range m.verdicts {
		if (f.SubjectID == "" || v.SubjectID == f.SubjectID) &&
			(f.Type == "" || v.Type == f.Type) &&
			(f.Status == "" || v.Status == f.Status) &&
			(f.BatchID == "" || v.BatchID == f.BatchID) {
			out = append(out, v)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if n := f.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) Summary(context.Context) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := newSummary()
	for _, v := range m.verdicts {
		s.add(string(v.Status), v.Type, 1)
	}
	return s, nil
}

func (m *Memory) LatestRefreshes(context.Context) ([]model.RefreshAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := map[string]model.RefreshAttempt{}
	var ids []string
	for _, a := range m.refreshes {
		prev, ok := latest[a.SourceID]
		if !ok {
			ids = append(ids, a.SourceID)
		}
		if !ok || !a.StartedAt.Before(prev.StartedAt) {
			latest[a.SourceID] = a
		}
	}
	sort.Strings(ids)
	out := make([]model.RefreshAttempt, 0, len(ids))
	for _, id := range ids {
		out = append(out, latest[id])
	}
	return out, nil
}

// Verdicts returns a copy of every saved verdict in save order.
func (m *Memory) Verdicts() []model.Verdict {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.Verdict(nil), m.verdicts...)
}

// Refreshes returns a copy of every saved refresh attempt.
func (m *Memory) Refreshes() []model.RefreshAttempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.RefreshAttempt(nil), m.refreshes...)
}
