// Package index holds the immutable per-source record snapshots that handlers
// match against, and the set of atomic pointers they are published through.
package index

import (
	"sync/atomic"
	"time"

	"github.com/sells-group/verify-cli/internal/model"
)

// SourceIndex is a read-only snapshot of one source's records. It is never
// mutated after construction; a refresh builds a new one.
type SourceIndex struct {
	SourceID string
	Label    string
	LoadedAt time.Time
	ETag     string

	records  []model.ExclusionRecord
	byLast   map[string][]int
	combined []int
}

// New builds an index over records, which must already be normalized. The
// slice is owned by the index afterwards.
func New(sourceID, label string, records []model.ExclusionRecord, loadedAt time.Time, etag string) *SourceIndex {
	idx := &SourceIndex{
		SourceID: sourceID,
		Label:    label,
		LoadedAt: loadedAt,
		ETag:     etag,
		records:  records,
		byLast:   make(map[string][]int),
	}
	for i, r := range records {
		if r.HasDiscreteName() {
			idx.byLast[r.LastName] = append(idx.byLast[r.LastName], i)
		} else {
			idx.combined = append(idx.combined, i)
		}
	}
	return idx
}

// Len returns the number of records.
func (s *SourceIndex) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Record returns the record at position i.
func (s *SourceIndex) Record(i int) model.ExclusionRecord {
	return s.records[i]
}

// Records returns a copy of the records in index order.
func (s *SourceIndex) Records() []model.ExclusionRecord {
	out := make([]model.ExclusionRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Probe returns the positions of discrete records with this last name and
// every combined-name record, in index order.
func (s *SourceIndex) Probe(last string) []int {
	discrete := s.byLast[last]
	out := make([]int, 0, len(discrete)+len(s.combined))
	i, j := 0, 0
	for i < len(discrete) || j < len(s.combined) {
		if j >= len(s.combined) || (i < len(discrete) && discrete[i] < s.combined[j]) {
			out = append(out, discrete[i])
			i++
		} else {
			out = append(out, s.combined[j])
			j++
		}
	}
	return out
}

// WithETag returns a shallow copy that shares records but carries a new
// load time and ETag. Used when the upstream reports no change.
func (s *SourceIndex) WithETag(loadedAt time.Time, etag string) *SourceIndex {
	cp := *s
	cp.LoadedAt = loadedAt
	cp.ETag = etag
	return &cp
}

// Set maps source ids to published indexes. Its key set is fixed at
// construction; only the pointed-to snapshots change.
type Set struct {
	slots map[string]*atomic.Pointer[SourceIndex]
}

// NewSet creates a set with one empty slot per source id.
func NewSet(sourceIDs ...string) *Set {
	s := &Set{slots: make(map[string]*atomic.Pointer[SourceIndex], len(sourceIDs))}
	for _, id := range sourceIDs {
		s.slots[id] = new(atomic.Pointer[SourceIndex])
	}
	return s
}

// Get returns the current snapshot, or nil if none is installed or the id is
// unknown.
func (s *Set) Get(sourceID string) *SourceIndex {
	slot, ok := s.slots[sourceID]
	if !ok {
		return nil
	}
	return slot.Load()
}

// Install publishes idx for its source. Readers holding the previous snapshot
// keep using it. Returns false for an unknown source.
func (s *Set) Install(idx *SourceIndex) bool {
	slot, ok := s.slots[idx.SourceID]
	if !ok {
		return false
	}
	slot.Store(idx)
	return true
}

// Has reports whether the set has a slot for sourceID.
func (s *Set) Has(sourceID string) bool {
	_, ok := s.slots[sourceID]
	return ok
}
