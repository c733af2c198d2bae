// Package scheduler keeps indexed sources fresh in the background.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/model"
)

// Refresher rebuilds source indexes. ingest.Manager implements it.
type Refresher interface {
	RefreshMany(ctx context.Context, sourceIDs []string, concurrency int) []model.RefreshAttempt
	Due(src catalog.SourceConfig) bool
}

// Options configures a Scheduler.
type Options struct {
	Registry  *catalog.Registry
	Refresher Refresher
	// Interval between cycles. Default: 24h.
	Interval time.Duration
	// ErrorBackoff replaces Interval after a failed cycle. Default: 1h.
	ErrorBackoff time.Duration
	// Concurrency bounds parallel source refreshes. Default: 2.
	Concurrency int
	Clock       clockwork.Clock
}

// Cycle summarizes one pass over the catalog.
type Cycle struct {
	StartedAt time.Time              `json:"started_at"`
	Forced    bool                   `json:"forced"`
	Attempts  []model.RefreshAttempt `json:"attempts"`
	Err       string                 `json:"error,omitempty"`
}

// Scheduler runs refresh cycles until its context is cancelled.
type Scheduler struct {
	opts Options
	log  *zap.Logger

	mu   sync.RWMutex
	last *Cycle
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Scheduler{opts: opts, log: zap.L().With(zap.String("component", "scheduler"))}
}

// Run loops until ctx is cancelled. The first cycle refreshes every indexed
// source; later cycles refresh only those that are due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("concurrency", s.opts.Concurrency),
	)
	force := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := s.opts.Interval
		if _, err := s.RunOnce(ctx, force); err != nil {
			s.log.Error("refresh cycle failed, backing off",
				zap.Duration("backoff", s.opts.ErrorBackoff),
				zap.Error(err),
			)
			wait = s.opts.ErrorBackoff
		} else {
			force = false
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-s.opts.Clock.After(wait):
		}
	}
}

// RunOnce performs one cycle. Per-source failures are reported in the
// attempts; only a cycle-level failure returns an error.
func (s *Scheduler) RunOnce(ctx context.Context, force bool) (cycle Cycle, err error) {
	cycle = Cycle{StartedAt: s.opts.Clock.Now(), Forced: force}
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("scheduler: cycle panicked: %v", r)
		}
		if err != nil {
			cycle.Err = err.Error()
		}
		s.mu.Lock()
		s.last = &cycle
		s.mu.Unlock()
	}()

	var ids []string
	for _, src := range s.opts.Registry.Indexed() {
		if force || s.opts.Refresher.Due(src) {
			ids = append(ids, src.ID)
		}
	}
	if len(ids) == 0 {
		s.log.Debug("no sources due")
		return cycle, nil
	}

	cycle.Attempts = s.opts.Refresher.RefreshMany(ctx, ids, s.opts.Concurrency)

	var failed int
	for _, a := range cycle.Attempts {
		if !a.Success {
			failed++
		}
	}
	s.log.Info("refresh cycle complete",
		zap.Int("sources", len(ids)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", s.opts.Clock.Since(cycle.StartedAt)),
	)
	if ctx.Err() != nil {
		return cycle, eris.Wrap(ctx.Err(), "scheduler: cycle interrupted")
	}
	return cycle, nil
}

// Last returns the most recent cycle, or nil before the first completes.
func (s *Scheduler) Last() *Cycle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	c := *s.last
	return &c
}

// String describes the schedule for logs and status output.
func (s *Scheduler) String() string {
	return fmt.Sprintf("every %s (backoff %s, concurrency %d)", s.opts.Interval, s.opts.ErrorBackoff, s.opts.Concurrency)
}
