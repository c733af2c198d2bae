// Package verify runs verification checks for one subject or a batch of
// subjects. Every requested (subject, type) pair yields exactly one verdict.
package verify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/verify-cli/internal/dispatch"
	"github.com/sells-group/verify-cli/internal/handler"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

// MsgCancelled is the error text of units skipped after cancellation.
const MsgCancelled = "verification cancelled"

// Dispatcher resolves a verification type to a handler.
type Dispatcher interface {
	Resolve(verificationType string, q model.VerificationQuery) handler.Handler
}

// StatusSource reports per-source index state.
type StatusSource interface {
	Status() []model.SourceStatus
}

// Observer is notified of each completed verdict.
type Observer interface {
	VerdictRecorded(v model.Verdict, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) VerdictRecorded(model.Verdict, time.Duration) {}

// Options configures a Service.
type Options struct {
	Dispatcher Dispatcher
	Subjects   store.SubjectProvider
	Results    store.ResultStore
	Sources    StatusSource
	Observer   Observer
	Clock      clockwork.Clock

	// Concurrency bounds parallel types per subject. Default: 4.
	Concurrency int
	// BatchConcurrency bounds parallel subjects per batch. Default: 2.
	BatchConcurrency int
	// HandlerTimeout bounds one handler call. Default: 30s.
	HandlerTimeout time.Duration
	// RemotePacing is the minimum gap between remote handler calls.
	// Zero or negative disables pacing.
	RemotePacing time.Duration
	// Background is the parent context of detached batches.
	Background context.Context
}

// Service is the verification orchestrator.
type Service struct {
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
	wg      sync.WaitGroup
}

// BatchSummary reports the outcome of a batch.
type BatchSummary struct {
	BatchID  string                      `json:"batch_id"`
	Subjects int                         `json:"subject_count"`
	Types    []string                    `json:"verification_types"`
	Total    int                         `json:"total"`
	ByStatus map[model.VerdictStatus]int `json:"by_status"`
	Duration time.Duration               `json:"duration"`
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 2
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Background == nil {
		opts.Background = context.Background()
	}

	limit := rate.Inf
	if opts.RemotePacing > 0 {
		limit = rate.Every(opts.RemotePacing)
	}
	return &Service{
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "verify")),
	}
}

// VerifyOne runs every requested type for one subject. Verdicts are returned
// in request order.
func (s *Service) VerifyOne(ctx context.Context, subjectID string, types []string) []model.Verdict {
	return s.verifySubject(ctx, subjectID, types, "")
}

func (s *Service) verifySubject(ctx context.Context, subjectID string, types []string, batchID string) []model.Verdict {
	out := make([]model.Verdict, len(types))
	if len(types) == 0 {
		return out
	}

	var subj *model.Subject
	var lookupErr error
	if ctx.Err() == nil {
		subj, lookupErr = s.opts.Subjects.GetSubject(ctx, subjectID)
		if lookupErr == nil && subj == nil {
			lookupErr = store.ErrSubjectNotFound
		}
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, t := range types {
		g.Go(func() error {
			out[i] = s.unit(ctx, subjectID, subj, lookupErr, t, batchID)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// unit produces, persists and reports one verdict. It never panics.
func (s *Service) unit(ctx context.Context, subjectID string, subj *model.Subject, lookupErr error, verificationType, batchID string) model.Verdict {
	start := s.opts.Clock.Now()
	t := dispatch.Normalize(verificationType)

	v := s.produce(ctx, subjectID, subj, lookupErr, t)
	v.ID = uuid.NewString()
	v.SubjectID = subjectID
	v.Type = t
	v.BatchID = batchID
	v.CheckedAt = s.opts.Clock.Now().UTC()
	if v.Details == nil {
		v.Details = map[string]any{}
	}

	s.record(ctx, v, start)
	return v
}

// produce resolves and runs the handler. Panics anywhere on the way become
// ERROR verdicts.
func (s *Service) produce(ctx context.Context, subjectID string, subj *model.Subject, lookupErr error, t string) (v model.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("verification panicked",
				zap.String("subject_id", subjectID),
				zap.String("type", t),
				zap.Any("panic", r),
			)
			v = model.Verdict{Status: model.StatusError, Error: fmt.Sprintf("verification panicked: %v", r)}
		}
	}()

	switch {
	case ctx.Err() != nil:
		return model.Verdict{Status: model.StatusError, Error: MsgCancelled}
	case lookupErr != nil || subj == nil:
		return model.Verdict{Status: model.StatusError, Error: fmt.Sprintf("subject %s: %v", subjectID, lookupErr)}
	default:
		return s.run(ctx, *subj, t)
	}
}

// record persists v and notifies the observer. A failing or panicking
// store or observer is logged and does not affect the returned verdict.
func (s *Service) record(ctx context.Context, v model.Verdict, start time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recording verdict panicked",
				zap.String("verdict_id", v.ID),
				zap.String("subject_id", v.SubjectID),
				zap.String("type", v.Type),
				zap.Any("panic", r),
			)
		}
	}()

	if err := s.opts.Results.SaveVerdict(context.WithoutCancel(ctx), v); err != nil {
		s.log.Error("save verdict failed",
			zap.String("verdict_id", v.ID),
			zap.String("subject_id", v.SubjectID),
			zap.String("type", v.Type),
			zap.Error(err),
		)
	}
	elapsed := s.opts.Clock.Since(start)
	s.opts.Observer.VerdictRecorded(v, elapsed)
	s.log.Debug("verdict recorded",
		zap.String("subject_id", v.SubjectID),
		zap.String("type", v.Type),
		zap.String("status", string(v.Status)),
		zap.String("batch_id", v.BatchID),
		zap.Duration("elapsed", elapsed),
	)
}

// run dispatches and calls a handler under its timeout.
func (s *Service) run(ctx context.Context, subj model.Subject, t string) model.Verdict {
	q := model.QueryFor(subj, t)
	h := s.opts.Dispatcher.Resolve(t, q)

	if h.Remote() {
		if err := s.limiter.Wait(ctx); err != nil {
			return model.Verdict{Status: model.StatusError, Error: MsgCancelled}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.HandlerTimeout)
	defer cancel()

	v := h.Verify(callCtx, q)
	if v.Status == model.StatusError && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		v.Error = fmt.Sprintf("verification timed out after %s: %s", s.opts.HandlerTimeout, v.Error)
	}
	return v
}

// RunBatch verifies every subject for every type and blocks until done.
func (s *Service) RunBatch(ctx context.Context, job model.BatchJob) BatchSummary {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	start := s.opts.Clock.Now()
	log := s.log.With(zap.String("batch_id", job.ID))
	log.Info("batch started", zap.Int("subjects", len(job.SubjectIDs)), zap.Strings("types", job.Types))

	sum := BatchSummary{
		BatchID:  job.ID,
		Subjects: len(job.SubjectIDs),
		Types:    job.Types,
		ByStatus: map[model.VerdictStatus]int{},
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.opts.BatchConcurrency)
	for _, id := range job.SubjectIDs {
		g.Go(func() error {
			verdicts := s.verifySubject(ctx, id, job.Types, job.ID)
			mu.Lock()
			defer mu.Unlock()
			for _, v := range verdicts {
				sum.Total++
				sum.ByStatus[v.Status]++
			}
			return nil
		})
	}
	_ = g.Wait()

	sum.Duration = s.opts.Clock.Since(start)
	log.Info("batch complete",
		zap.Int("verdicts", sum.Total),
		zap.Int("errors", sum.ByStatus[model.StatusError]),
		zap.Duration("elapsed", sum.Duration),
	)
	return sum
}

// StartBatch runs a batch in the background and returns its id at once.
// The batch is detached from ctx; Options.Background governs its lifetime.
func (s *Service) StartBatch(_ context.Context, subjectIDs, types []string) string {
	job := model.BatchJob{ID: uuid.NewString(), SubjectIDs: subjectIDs, Types: types}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunBatch(s.opts.Background, job)
	}()
	return job.ID
}

// Wait blocks until all background batches finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// SourceStatus reports the serving state of every enabled source.
func (s *Service) SourceStatus() []model.SourceStatus {
	if s.opts.Sources == nil {
		return nil
	}
	return s.opts.Sources.Status()
}
