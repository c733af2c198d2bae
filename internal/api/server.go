// Package api exposes the verification engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/store"
)

// MaxBatchSubjects bounds one verify-batch request.
const MaxBatchSubjects = 1000

// Verifier is the orchestrator surface the API drives.
type Verifier interface {
	VerifyOne(ctx context.Context, subjectID string, types []string) []model.Verdict
	StartBatch(ctx context.Context, subjectIDs, types []string) string
	SourceStatus() []model.SourceStatus
}

// Reader is the read side of the store.
type Reader interface {
	GetSubject(ctx context.Context, id string) (*model.Subject, error)
	ListVerdicts(ctx context.Context, filter store.VerdictFilter) ([]model.Verdict, error)
	Summary(ctx context.Context) (*store.Summary, error)
	LatestRefreshes(ctx context.Context) ([]model.RefreshAttempt, error)
}

// Server holds the HTTP handlers.
type Server struct {
	verifier Verifier
	reader   Reader
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

// New creates a Server. A nil gatherer disables /metrics.
func New(v Verifier, r Reader, g prometheus.Gatherer) *Server {
	return &Server{
		verifier: v,
		reader:   r,
		gatherer: g,
		log:      zap.L().With(zap.String("component", "api")),
	}
}

// Routes returns the router with every endpoint mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/subjects/{id}/verify", s.handleVerify)
		r.Get("/subjects/{id}/verification-results", s.handleSubjectResults)
		r.Post("/verify-batch", s.handleBatch)
		r.Get("/sources/status", s.handleSourceStatus)
		r.Get("/verification-results", s.handleListResults)
		r.Get("/verification-results/summary", s.handleSummary)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type verifyRequest struct {
	Types []string `json:"verification_types"`
}

type verifyResponse struct {
	SubjectID string          `json:"subject_id"`
	Results   []model.Verdict `json:"results"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	types := cleanList(req.Types)
	if len(types) == 0 {
		writeError(w, http.StatusBadRequest, "verification_types is required")
		return
	}

	if _, err := s.reader.GetSubject(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSubjectNotFound) {
			writeError(w, http.StatusNotFound, "subject not found")
			return
		}
		s.log.Error("api: get subject failed", zap.String("subject_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "subject lookup failed")
		return
	}

	verdicts := s.verifier.VerifyOne(r.Context(), id, types)
	writeJSON(w, http.StatusOK, verifyResponse{SubjectID: id, Results: verdicts})
}

type batchRequest struct {
	SubjectIDs []string `json:"subject_ids"`
	Types      []string `json:"verification_types"`
}

type batchResponse struct {
	BatchID      string `json:"batch_id"`
	Status       string `json:"status"`
	SubjectCount int    `json:"subject_count"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids := cleanList(req.SubjectIDs)
	types := cleanList(req.Types)
	switch {
	case len(ids) == 0:
		writeError(w, http.StatusBadRequest, "subject_ids is required")
		return
	case len(ids) > MaxBatchSubjects:
		writeError(w, http.StatusBadRequest, "too many subject_ids (max "+strconv.Itoa(MaxBatchSubjects)+")")
		return
	case len(types) == 0:
		writeError(w, http.StatusBadRequest, "verification_types is required")
		return
	}

	batchID := s.verifier.StartBatch(r.Context(), ids, types)
	s.log.Info("api: batch accepted", zap.String("batch_id", batchID), zap.Int("subjects", len(ids)))
	writeJSON(w, http.StatusAccepted, batchResponse{BatchID: batchID, Status: "started", SubjectCount: len(ids)})
}

type statusResponse struct {
	Sources        []model.SourceStatus   `json:"sources"`
	LastRefreshes  []model.RefreshAttempt `json:"last_refreshes"`
	RefreshHistory string                 `json:"refresh_history,omitempty"`
}

func (s *Server) handleSourceStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sources: s.verifier.SourceStatus()}
	refreshes, err := s.reader.LatestRefreshes(r.Context())
	if err != nil {
		s.log.Warn("api: latest refreshes failed", zap.Error(err))
		resp.RefreshHistory = "unavailable"
	}
	resp.LastRefreshes = refreshes
	if resp.Sources == nil {
		resp.Sources = []model.SourceStatus{}
	}
	if resp.LastRefreshes == nil {
		resp.LastRefreshes = []model.RefreshAttempt{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type listResponse struct {
	Results []model.Verdict `json:"results"`
	Count   int             `json:"count"`
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.listVerdicts(w, r, f)
}

func (s *Server) handleSubjectResults(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.SubjectID = chi.URLParam(r, "id")
	s.listVerdicts(w, r, f)
}

func (s *Server) listVerdicts(w http.ResponseWriter, r *http.Request, f store.VerdictFilter) {
	verdicts, err := s.reader.ListVerdicts(r.Context(), f)
	if err != nil {
		s.log.Error("api: list verdicts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list verification results failed")
		return
	}
	if verdicts == nil {
		verdicts = []model.Verdict{}
	}
	writeJSON(w, http.StatusOK, listResponse{Results: verdicts, Count: len(verdicts)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.reader.Summary(r.Context())
	if err != nil {
		s.log.Error("api: summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "summary failed")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func parseFilter(r *http.Request) (store.VerdictFilter, error) {
	q := r.URL.Query()
	f := store.VerdictFilter{
		SubjectID: strings.TrimSpace(q.Get("subject_id")),
		Type:      strings.ToLower(strings.TrimSpace(q.Get("verification_type"))),
		Status:    model.VerdictStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		BatchID:   strings.TrimSpace(q.Get("batch_id")),
	}
	switch f.Status {
	case "", model.StatusPending, model.StatusPassed, model.StatusFailed, model.StatusError:
	default:
		return f, errors.New("invalid status " + strconv.Quote(string(f.Status)))
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, errors.New("invalid limit")
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		return f, errors.New("invalid offset")
	}
	return f, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
