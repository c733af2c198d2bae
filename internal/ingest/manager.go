package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/index"
	"github.com/sells-group/verify-cli/internal/model"
)

// ErrNotLoaded means a source has no installed index.
var ErrNotLoaded = eris.New("ingest: source index not loaded")

// Recorder persists refresh attempt summaries.
type Recorder interface {
	SaveRefreshAttempt(ctx context.Context, a model.RefreshAttempt) error
}

// Observer is notified of refresh outcomes.
type Observer interface {
	RefreshCompleted(a model.RefreshAttempt)
	IndexInstalled(sourceID string, records int)
}

type nopObserver struct{}

func (nopObserver) RefreshCompleted(model.RefreshAttempt) {}
func (nopObserver) IndexInstalled(string, int)            {}

// DefaultLazyTimeout bounds a lazy build started on first use.
const DefaultLazyTimeout = 30 * time.Minute

// ManagerOptions configures a Manager. Only Registry and Builder are required.
type ManagerOptions struct {
	Registry *catalog.Registry
	Builder  Builder
	Recorder Recorder
	Observer Observer
	Clock    clockwork.Clock
	// LazyTimeout bounds a lazy build. It runs detached from the caller
	// that triggered it. Default: DefaultLazyTimeout.
	LazyTimeout time.Duration
}

// Manager owns the published indexes and serializes builds per source.
// Builds of different sources never block each other.
type Manager struct {
	registry *catalog.Registry
	builder  Builder
	recorder Recorder
	observer Observer
	clock    clockwork.Clock
	lazyTTL  time.Duration

	set    *index.Set
	flight singleflight.Group
	lazy   map[string]*atomic.Bool
	log    *zap.Logger
}

// NewManager creates a Manager with one index slot per indexed source.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.LazyTimeout <= 0 {
		opts.LazyTimeout = DefaultLazyTimeout
	}

	indexed := opts.Registry.Indexed()
	ids := make([]string, 0, len(indexed))
	lazy := make(map[string]*atomic.Bool, len(indexed))
	for _, s := range indexed {
		ids = append(ids, s.ID)
		lazy[s.ID] = new(atomic.Bool)
	}

	return &Manager{
		registry: opts.Registry,
		builder:  opts.Builder,
		recorder: opts.Recorder,
		observer: opts.Observer,
		clock:    opts.Clock,
		lazyTTL:  opts.LazyTimeout,
		set:      index.NewSet(ids...),
		lazy:     lazy,
		log:      zap.L().With(zap.String("component", "ingest")),
	}
}

// Index returns the installed snapshot for a source, or nil.
func (m *Manager) Index(sourceID string) *index.SourceIndex {
	return m.set.Get(sourceID)
}

// Install publishes idx directly, bypassing the builder.
func (m *Manager) Install(idx *index.SourceIndex) bool {
	if !m.set.Install(idx) {
		return false
	}
	m.observer.IndexInstalled(idx.SourceID, idx.Len())
	return true
}

// Refresh rebuilds one source and installs the result. Concurrent calls for
// the same source share a single build. On failure the installed index is
// left untouched. A caller whose ctx ends while waiting on a shared build
// gets a failed attempt at once; the build itself carries on.
func (m *Manager) Refresh(ctx context.Context, sourceID string) model.RefreshAttempt {
	ch := m.flight.DoChan(sourceID, func() (any, error) {
		return m.refresh(ctx, sourceID), nil
	})
	select {
	case r := <-ch:
		return r.Val.(model.RefreshAttempt)
	case <-ctx.Done():
		return model.RefreshAttempt{
			SourceID:  sourceID,
			StartedAt: m.clock.Now(),
			Error:     fmt.Sprintf("ingest: gave up waiting for refresh: %v", ctx.Err()),
		}
	}
}

func (m *Manager) refresh(ctx context.Context, sourceID string) (attempt model.RefreshAttempt) {
	start := m.clock.Now()
	attempt = model.RefreshAttempt{SourceID: sourceID, StartedAt: start}
	log := m.log.With(zap.String("source", sourceID))

	defer func() {
		if r := recover(); r != nil {
			attempt.Success = false
			attempt.Error = fmt.Sprintf("ingest: panic: %v", r)
			log.Error("ingest: refresh panicked", zap.Any("panic", r))
		}
		attempt.Duration = m.clock.Since(start)
		m.record(ctx, attempt)
	}()

	src, ok := m.registry.Lookup(sourceID)
	if !ok || !m.set.Has(src.ID) {
		attempt.Error = fmt.Sprintf("ingest: source %q is not an indexed source", sourceID)
		return attempt
	}

	log.Info("ingest: refresh started")
	prev := m.set.Get(src.ID)
	etag := ""
	if prev != nil {
		etag = prev.ETag
	}

	idx, changed, err := m.builder.BuildIfChanged(ctx, src, etag)
	if err != nil {
		attempt.Error = err.Error()
		attempt.RecordCount = prev.Len()
		log.Error("ingest: refresh failed, keeping current index",
			zap.String("kind", string(KindOf(err))),
			zap.Int("current_records", prev.Len()),
			zap.Error(err),
		)
		return attempt
	}

	if !changed {
		if prev == nil {
			attempt.Error = "ingest: upstream reported unchanged but no index is installed"
			return attempt
		}
		m.set.Install(prev.WithETag(m.clock.Now(), etag))
		attempt.Success = true
		attempt.Unchanged = true
		attempt.RecordCount = prev.Len()
		log.Info("ingest: refresh complete, upstream unchanged", zap.Int("records", prev.Len()))
		return attempt
	}

	m.Install(idx)
	attempt.Success = true
	attempt.RecordCount = idx.Len()
	log.Info("ingest: refresh complete",
		zap.Int("records", idx.Len()),
		zap.Duration("elapsed", m.clock.Since(start)),
	)
	return attempt
}

func (m *Manager) record(ctx context.Context, a model.RefreshAttempt) {
	m.observer.RefreshCompleted(a)
	if m.recorder == nil {
		return
	}
	if err := m.recorder.SaveRefreshAttempt(context.WithoutCancel(ctx), a); err != nil {
		m.log.Warn("ingest: save refresh attempt failed", zap.String("source", a.SourceID), zap.Error(err))
	}
}

// RefreshMany refreshes the given sources with bounded concurrency and
// returns attempts in input order.
func (m *Manager) RefreshMany(ctx context.Context, sourceIDs []string, concurrency int) []model.RefreshAttempt {
	if concurrency <= 0 {
		concurrency = 1
	}
	out := make([]model.RefreshAttempt, len(sourceIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range sourceIDs {
		g.Go(func() error {
			out[i] = m.Refresh(gctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// EnsureLoaded returns the installed index, performing at most one lazy
// ingest per source for the life of the Manager when none is installed.
// The lazy build runs detached from ctx under LazyTimeout, so a caller that
// gives up early does not spend the attempt. Concurrent callers share it.
func (m *Manager) EnsureLoaded(ctx context.Context, sourceID string) (*index.SourceIndex, error) {
	if idx := m.set.Get(sourceID); idx != nil {
		return idx, nil
	}
	flag, ok := m.lazy[sourceID]
	if !ok {
		return nil, eris.Wrapf(ErrNotLoaded, "ingest: unknown source %q", sourceID)
	}

	ch := m.flight.DoChan("lazy:"+sourceID, func() (any, error) {
		if idx := m.set.Get(sourceID); idx != nil {
			return idx, nil
		}
		if !flag.CompareAndSwap(false, true) {
			return (*index.SourceIndex)(nil), nil
		}
		m.log.Info("ingest: lazy load on first use", zap.String("source", sourceID))
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.lazyTTL)
		defer cancel()
		m.Refresh(bctx, sourceID)
		return m.set.Get(sourceID), nil
	})

	select {
	case r := <-ch:
		if idx, _ := r.Val.(*index.SourceIndex); idx != nil {
			return idx, nil
		}
		if idx := m.set.Get(sourceID); idx != nil {
			return idx, nil
		}
		return nil, ErrNotLoaded
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "ingest: waiting for %s index", sourceID)
	}
}

// Status reports every enabled source in registry order.
func (m *Manager) Status() []model.SourceStatus {
	enabled := m.registry.Enabled()
	out := make([]model.SourceStatus, 0, len(enabled))
	for _, s := range enabled {
		st := model.SourceStatus{SourceID: s.ID, Name: s.Name}
		switch idx := m.set.Get(s.ID); {
		case s.Live():
			st.Status = "Live"
		case idx != nil:
			loaded := idx.LoadedAt
			st.Loaded = true
			st.RecordCount = idx.Len()
			st.LastRefreshed = &loaded
			st.Status = "Active"
		default:
			st.Status = "Not Loaded"
		}
		out = append(out, st)
	}
	return out
}

// Due reports whether a source needs a refresh at the current time.
func (m *Manager) Due(src catalog.SourceConfig) bool {
	idx := m.set.Get(src.ID)
	if idx == nil {
		return true
	}
	interval := src.RefreshInterval
	if interval <= 0 {
		return true
	}
	return m.clock.Since(idx.LoadedAt) >= interval
}
