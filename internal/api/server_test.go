package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/metrics"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

type fakeVerifier struct {
	mu      sync.Mutex
	batches [][]string
	types   []string
}

func (f *fakeVerifier) VerifyOne(_ context.Context, id string, types []string) []model.Verdict {
	f.mu.Lock()
	f.types = types
	f.mu.Unlock()
	out := make([]model.Verdict, len(types))
	for i, t := range types {
		out[i] = model.Verdict{ID: "v" + t, SubjectID: id, Type: t, Status: model.StatusPassed, Details: map[string]any{}}
	}
	return out
}

func (f *fakeVerifier) StartBatch(_ context.Context, ids, _ []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, ids)
	return "batch-1"
}

func (f *fakeVerifier) snapshot() ([]string, [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.types, f.batches
}

func (f *fakeVerifier) SourceStatus() []model.SourceStatus {
	return []model.SourceStatus{{SourceID: "oig", Name: "OIG LEIE", Loaded: true, RecordCount: 3, Status: "Active"}}
}

type brokenReader struct{ *store.Memory }

func (brokenReader) ListVerdicts(context.Context, store.VerdictFilter) ([]model.Verdict, error) {
	return nil, eris.New("db down")
}

func (brokenReader) LatestRefreshes(context.Context) ([]model.RefreshAttempt, error) {
	return nil, eris.New("db down")
}

func (brokenReader) GetSubject(context.Context, string) (*model.Subject, error) {
	return nil, eris.New("db down")
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeVerifier, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(model.Subject{ID: "s1", FirstName: "John", LastName: "Doe"})
	v := &fakeVerifier{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.VerdictRecorded(model.Verdict{Type: "oig", Status: model.StatusPassed}, time.Millisecond)
	srv := httptest.NewServer(New(v, mem, reg).Routes())
	t.Cleanup(srv.Close)
	return srv, v, mem
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var sb bytes.Buffer
	_, err := sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, sb.String(), "verify_verdicts_total")
}

func TestVerify(t *testing.T) {
	srv, v, _ := newTestServer(t)
	resp := post(t, srv.URL+"/api/subjects/s1/verify", `{"verification_types":["oig"," sam ",""]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[verifyResponse](t, resp)
	assert.Equal(t, "s1", body.SubjectID)
	require.Len(t, body.Results, 2)
	types, _ := v.snapshot()
	assert.Equal(t, []string{"oig", "sam"}, types)
}

func TestVerify_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tests := []struct {
		name string
		path string
		body string
		code int
		msg  string
	}{
		{"bad json", "/api/subjects/s1/verify", `{`, http.StatusBadRequest, "invalid request body"},
		{"no types", "/api/subjects/s1/verify", `{"verification_types":[]}`, http.StatusBadRequest, "verification_types is required"},
		{"unknown subject", "/api/subjects/nope/verify", `{"verification_types":["oig"]}`, http.StatusNotFound, "subject not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, tt.msg, decode[map[string]string](t, resp)["error"])
		})
	}
}

func TestVerify_LookupFailure(t *testing.T) {
	srv := httptest.NewServer(New(&fakeVerifier{}, brokenReader{store.NewMemory()}, nil).Routes())
	defer srv.Close()

	resp := post(t, srv.URL+"/api/subjects/s1/verify", `{"verification_types":["oig"]}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestBatch(t *testing.T) {
	srv, v, _ := newTestServer(t)
	resp := post(t, srv.URL+"/api/verify-batch", `{"subject_ids":["s1","s2"],"verification_types":["oig"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	body := decode[batchResponse](t, resp)
	assert.Equal(t, batchResponse{BatchID: "batch-1", Status: "started", SubjectCount: 2}, body)
	_, batches := v.snapshot()
	assert.Equal(t, [][]string{{"s1", "s2"}}, batches)
}

func TestBatch_Validation(t *testing.T) {
	srv, v, _ := newTestServer(t)

	ids := make([]string, MaxBatchSubjects+1)
	for i := range ids {
		ids[i] = "s"
	}
	tooMany, _ := json.Marshal(batchRequest{SubjectIDs: ids, Types: []string{"oig"}})

	for _, body := range []string{
		`{`,
		`{"subject_ids":[],"verification_types":["oig"]}`,
		`{"subject_ids":["s1"]}`,
		string(tooMany),
	} {
		resp := post(t, srv.URL+"/api/verify-batch", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
	_, batches := v.snapshot()
	assert.Empty(t, batches)
}

func TestSourceStatus(t *testing.T) {
	srv, _, mem := newTestServer(t)
	require.NoError(t, mem.SaveRefreshAttempt(context.Background(), model.RefreshAttempt{SourceID: "oig", Success: true, RecordCount: 3}))

	resp := get(t, srv.URL+"/api/sources/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[statusResponse](t, resp)
	require.Len(t, body.Sources, 1)
	assert.Equal(t, "Active", body.Sources[0].Status)
	require.Len(t, body.LastRefreshes, 1)
	assert.Equal(t, 3, body.LastRefreshes[0].RecordCount)
	assert.Empty(t, body.RefreshHistory)
}

func TestSourceStatus_HistoryUnavailable(t *testing.T) {
	srv := httptest.NewServer(New(&fakeVerifier{}, brokenReader{store.NewMemory()}, nil).Routes())
	defer srv.Close()

	resp := get(t, srv.URL+"/api/sources/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[statusResponse](t, resp)
	assert.Len(t, body.Sources, 1)
	assert.Empty(t, body.LastRefreshes)
	assert.Equal(t, "unavailable", body.RefreshHistory)
}

func seedVerdicts(t *testing.T, mem *store.Memory) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range []model.Verdict{
		{ID: "a", SubjectID: "s1", Type: "oig", Status: model.StatusPassed},
		{ID: "b", SubjectID: "s1", Type: "sam", Status: model.StatusFailed},
		{ID: "c", SubjectID: "s2", Type: "oig", Status: model.StatusError, BatchID: "b1"},
	} {
		v.CheckedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, mem.SaveVerdict(context.Background(), v))
	}
}

func TestListResults(t *testing.T) {
	srv, _, mem := newTestServer(t)
	seedVerdicts(t, mem)

	tests := []struct {
		query string
		ids   []string
	}{
		{"", []string{"c", "b", "a"}},
		{"?subject_id=s1", []string{"b", "a"}},
		{"?verification_type=OIG", []string{"c", "a"}},
		{"?status=failed", []string{"b"}},
		{"?batch_id=b1", []string{"c"}},
		{"?limit=1&offset=1", []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp := get(t, srv.URL+"/api/verification-results"+tt.query)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			body := decode[listResponse](t, resp)
			var ids []string
			for _, v := range body.Results {
				ids = append(ids, v.ID)
			}
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, len(tt.ids), body.Count)
		})
	}
}

func TestListResults_BadParams(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, q := range []string{"?status=maybe", "?limit=x", "?offset=-1"} {
		resp := get(t, srv.URL+"/api/verification-results"+q)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestListResults_StoreFailure(t *testing.T) {
	srv := httptest.NewServer(New(&fakeVerifier{}, brokenReader{store.NewMemory()}, nil).Routes())
	defer srv.Close()

	resp := get(t, srv.URL+"/api/verification-results")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSubjectResults(t *testing.T) {
	srv, _, mem := newTestServer(t)
	seedVerdicts(t, mem)

	resp := get(t, srv.URL+"/api/subjects/s2/verification-results")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[listResponse](t, resp)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "c", body.Results[0].ID)

	resp = get(t, srv.URL+"/api/subjects/none/verification-results")
	body = decode[listResponse](t, resp)
	assert.NotNil(t, body.Results)
	assert.Zero(t, body.Count)
}

func TestSummary(t *testing.T) {
	srv, _, mem := newTestServer(t)
	seedVerdicts(t, mem)

	resp := get(t, srv.URL+"/api/verification-results/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sum := decode[store.Summary](t, resp)
	assert.Equal(t, 3, sum.TotalChecks)
	assert.Equal(t, 2, sum.ByType["oig"])
	assert.Equal(t, 1, sum.ByStatus["failed"])
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
