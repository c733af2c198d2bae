package verify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/dispatch"
	"github.com/sells-group/verify-cli/internal/handler"
	"github.com/sells-group/verify-cli/internal/index"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

type stubHandler struct {
	verify func(ctx context.Context, q model.VerificationQuery) model.Verdict
	remote bool
	calls  atomic.Int32
}

func (h *stubHandler) Remote() bool { return h.remote }

func (h *stubHandler) Verify(ctx context.Context, q model.VerificationQuery) model.Verdict {
	h.calls.Add(1)
	return h.verify(ctx, q)
}

func passing() *stubHandler {
	return &stubHandler{verify: func(context.Context, model.VerificationQuery) model.Verdict {
		return model.Verdict{Status: model.StatusPassed, DataSource: "stub"}
	}}
}

type stubDispatcher map[string]handler.Handler

func (d stubDispatcher) Resolve(t string, _ model.VerificationQuery) handler.Handler {
	if h, ok := d[t]; ok {
		return h
	}
	return handler.Unsupported{Type: t}
}

type failingResults struct{ calls atomic.Int32 }

func (f *failingResults) SaveVerdict(context.Context, model.Verdict) error {
	f.calls.Add(1)
	return errors.New("disk full")
}

func (f *failingResults) SaveRefreshAttempt(context.Context, model.RefreshAttempt) error { return nil }

func subjects() *store.Memory {
	return store.NewMemory(
		model.Subject{ID: "s1", FirstName: "John", LastName: "Doe"},
		model.Subject{ID: "s2", FirstName: "Jane", LastName: "Smith"},
		model.Subject{ID: "s3", FirstName: "Ann", LastName: "Lee"},
	)
}

func newService(d Dispatcher, mem *store.Memory) *Service {
	return NewService(Options{Dispatcher: d, Subjects: mem, Results: mem})
}

type fixedIndexes map[string]*index.SourceIndex

func (f fixedIndexes) EnsureLoaded(_ context.Context, id string) (*index.SourceIndex, error) {
	return f[id], nil
}

func TestVerifyOne_UnknownTypeIsPending(t *testing.T) {
	reg, err := catalog.NewRegistry(catalog.Defaults()...)
	require.NoError(t, err)
	idx := fixedIndexes{"oig": index.New("oig", "OIG LEIE Database", []model.ExclusionRecord{
		{Kind: model.KindIndividual, FirstName: "JOHN", LastName: "DOE"},
	}, time.Now(), "")}
	router := dispatch.New(dispatch.Options{Registry: reg, Indexes: idx, Rules: match.DefaultRules()})

	mem := subjects()
	svc := newService(router, mem)

	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"oig", "unknown_type"})
	require.Len(t, verdicts, 2)
	assert.Equal(t, "oig", verdicts[0].Type)
	assert.Equal(t, model.StatusFailed, verdicts[0].Status)
	assert.Equal(t, 100, verdicts[0].Candidates[0].Score)
	assert.Equal(t, "unknown_type", verdicts[1].Type)
	assert.Equal(t, model.StatusPending, verdicts[1].Status)
	assert.Equal(t, "UNKNOWN_TYPE API", verdicts[1].DataSource)

	for _, v := range verdicts {
		assert.NotEmpty(t, v.ID)
		assert.Equal(t, "s1", v.SubjectID)
		assert.False(t, v.CheckedAt.IsZero())
	}
	assert.Len(t, mem.Verdicts(), 2)
}

func TestVerifyOne_RequestOrderAndNormalizedTypes(t *testing.T) {
	mem := subjects()
	svc := newService(stubDispatcher{"oig": passing(), "sam": passing()}, mem)

	verdicts := svc.VerifyOne(context.Background(), "s2", []string{" SAM", "x", "oig"})
	require.Len(t, verdicts, 3)
	assert.Equal(t, []string{"sam", "x", "oig"}, []string{verdicts[0].Type, verdicts[1].Type, verdicts[2].Type})
	assert.Equal(t, model.StatusPassed, verdicts[0].Status)
	assert.Equal(t, model.StatusPending, verdicts[1].Status)
}

func TestVerifyOne_SubjectNotFound(t *testing.T) {
	mem := subjects()
	h := passing()
	svc := newService(stubDispatcher{"oig": h}, mem)

	verdicts := svc.VerifyOne(context.Background(), "nobody", []string{"oig", "sam"})
	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, model.StatusError, v.Status)
		assert.Contains(t, v.Error, "subject not found")
	}
	assert.Equal(t, int32(0), h.calls.Load())
	assert.Len(t, mem.Verdicts(), 2)
}

func TestVerifyOne_PanicBecomesError(t *testing.T) {
	mem := subjects()
	boom := &stubHandler{verify: func(context.Context, model.VerificationQuery) model.Verdict { panic("kaboom") }}
	svc := newService(stubDispatcher{"oig": passing(), "bad": boom}, mem)

	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"bad", "oig"})
	require.Len(t, verdicts, 2)
	assert.Equal(t, model.StatusError, verdicts[0].Status)
	assert.Contains(t, verdicts[0].Error, "kaboom")
	assert.NotNil(t, verdicts[0].Details)
	assert.Equal(t, model.StatusPassed, verdicts[1].Status)
}

type panickingDispatcher struct{ stubDispatcher }

func (d panickingDispatcher) Resolve(t string, q model.VerificationQuery) handler.Handler {
	if t == "boom" {
		panic("routing table corrupted")
	}
	return d.stubDispatcher.Resolve(t, q)
}

type panickingObserver struct{}

func (panickingObserver) VerdictRecorded(model.Verdict, time.Duration) { panic("observer broke") }

func TestVerifyOne_DispatcherPanicBecomesError(t *testing.T) {
	mem := subjects()
	svc := newService(panickingDispatcher{stubDispatcher{"oig": passing()}}, mem)

	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"oig", "boom"})
	require.Len(t, verdicts, 2)
	assert.Equal(t, model.StatusPassed, verdicts[0].Status)
	assert.Equal(t, model.StatusError, verdicts[1].Status)
	assert.Contains(t, verdicts[1].Error, "routing table corrupted")
	assert.Equal(t, "boom", verdicts[1].Type)
	assert.NotEmpty(t, verdicts[1].ID)
	assert.Len(t, mem.Verdicts(), 2)
}

func TestVerifyOne_ObserverPanicIsContained(t *testing.T) {
	mem := subjects()
	svc := NewService(Options{Dispatcher: stubDispatcher{"oig": passing()}, Subjects: mem, Results: mem, Observer: panickingObserver{}})

	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"oig"})
	require.Len(t, verdicts, 1)
	assert.Equal(t, model.StatusPassed, verdicts[0].Status)
	assert.Len(t, mem.Verdicts(), 1)
}

func TestVerifyOne_HandlerTimeout(t *testing.T) {
	mem := subjects()
	slow := &stubHandler{verify: func(ctx context.Context, _ model.VerificationQuery) model.Verdict {
		<-ctx.Done()
		return model.Verdict{Status: model.StatusError, Error: ctx.Err().Error()}
	}}
	svc := NewService(Options{Dispatcher: stubDispatcher{"slow": slow}, Subjects: mem, Results: mem, HandlerTimeout: 10 * time.Millisecond})

	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"slow"})
	require.Len(t, verdicts, 1)
	assert.Equal(t, model.StatusError, verdicts[0].Status)
	assert.Contains(t, verdicts[0].Error, "timed out")
}

func TestVerifyOne_Cancelled(t *testing.T) {
	mem := subjects()
	h := passing()
	svc := newService(stubDispatcher{"oig": h}, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	verdicts := svc.VerifyOne(ctx, "s1", []string{"oig", "oig"})
	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, model.StatusError, v.Status)
		assert.Equal(t, MsgCancelled, v.Error)
	}
	assert.Equal(t, int32(0), h.calls.Load())
	assert.Len(t, mem.Verdicts(), 2)
}

func TestVerifyOne_SaveFailureIsNotFatal(t *testing.T) {
	results := &failingResults{}
	svc := NewService(Options{Dispatcher: stubDispatcher{"oig": passing()}, Subjects: subjects(), Results: results})

	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"oig"})
	require.Len(t, verdicts, 1)
	assert.Equal(t, model.StatusPassed, verdicts[0].Status)
	assert.Equal(t, int32(1), results.calls.Load())
}

func TestRunBatch_OneTypeAlwaysErrors(t *testing.T) {
	mem := subjects()
	broken := &stubHandler{verify: func(context.Context, model.VerificationQuery) model.Verdict {
		return model.Verdict{Status: model.StatusError, Error: "source index unavailable"}
	}}
	svc := newService(stubDispatcher{"oig": passing(), "broken": broken}, mem)

	sum := svc.RunBatch(context.Background(), model.BatchJob{
		SubjectIDs: []string{"s1", "s2", "s3"},
		Types:      []string{"oig", "broken"},
	})
	assert.NotEmpty(t, sum.BatchID)
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 3, sum.ByStatus[model.StatusError])
	assert.Equal(t, 3, sum.ByStatus[model.StatusPassed])

	saved := mem.Verdicts()
	require.Len(t, saved, 6)
	var errs int
	for _, v := range saved {
		assert.Equal(t, sum.BatchID, v.BatchID)
		if v.Status == model.StatusError {
			errs++
			assert.Equal(t, "broken", v.Type)
		}
	}
	assert.Equal(t, 3, errs)
}

func TestRunBatch_CancelledMidway(t *testing.T) {
	mem := subjects()
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	h := &stubHandler{verify: func(context.Context, model.VerificationQuery) model.Verdict {
		if n.Add(1) == 1 {
			cancel()
		}
		return model.Verdict{Status: model.StatusPassed}
	}}
	svc := NewService(Options{Dispatcher: stubDispatcher{"oig": h}, Subjects: mem, Results: mem, Concurrency: 1, BatchConcurrency: 1})

	sum := svc.RunBatch(ctx, model.BatchJob{SubjectIDs: []string{"s1", "s2", "s3"}, Types: []string{"oig", "oig"}})
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 1, sum.ByStatus[model.StatusPassed])
	assert.Equal(t, 5, sum.ByStatus[model.StatusError])
	assert.Len(t, mem.Verdicts(), 6)
}

func TestStartBatch_Detached(t *testing.T) {
	mem := subjects()
	svc := newService(stubDispatcher{"oig": passing()}, mem)

	ctx, cancel := context.WithCancel(context.Background())
	id := svc.StartBatch(ctx, []string{"s1", "s2"}, []string{"oig"})
	cancel()
	svc.Wait()

	assert.NotEmpty(t, id)
	saved, err := mem.ListVerdicts(context.Background(), store.VerdictFilter{BatchID: id})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	for _, v := range saved {
		assert.Equal(t, model.StatusPassed, v.Status)
	}
}

func TestRemotePacing(t *testing.T) {
	mem := subjects()
	remote := passing()
	remote.remote = true
	svc := NewService(Options{Dispatcher: stubDispatcher{"nsopw": remote}, Subjects: mem, Results: mem, RemotePacing: 20 * time.Millisecond})

	start := time.Now()
	verdicts := svc.VerifyOne(context.Background(), "s1", []string{"nsopw", "nsopw", "nsopw"})
	elapsed := time.Since(start)

	require.Len(t, verdicts, 3)
	// One token is available up front; the other two wait one interval each.
	assert.GreaterOrEqual(t, elapsed, 35*time.Millisecond)
}

type staticStatus []model.SourceStatus

func (s staticStatus) Status() []model.SourceStatus { return s }

func TestSourceStatus(t *testing.T) {
	svc := NewService(Options{Sources: staticStatus{{SourceID: "oig", Status: "Active"}}})
	assert.Equal(t, "Active", svc.SourceStatus()[0].Status)
	assert.Nil(t, NewService(Options{}).SourceStatus())
}
