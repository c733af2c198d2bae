// Package handler turns one verification query into a verdict for one
// source family. Each handler owns its verdict polarity.
package handler

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/index"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

var (
	// ErrMalformedQuery means the query lacks a first or last name.
	ErrMalformedQuery = eris.New("malformed query: first and last name are required")
	// ErrIndexUnavailable means no usable index exists for the source.
	ErrIndexUnavailable = eris.New("source index unavailable")
)

// Handler checks one query against one source.
type Handler interface {
	// Verify never returns an error; failures become ERROR verdicts. The
	// caller stamps ID, subject, type and time.
	Verify(ctx context.Context, q model.VerificationQuery) model.Verdict
	// Remote reports whether each call reaches an external service.
	Remote() bool
}

// Indexes supplies loaded indexes, building lazily when needed.
type Indexes interface {
	EnsureLoaded(ctx context.Context, sourceID string) (*index.SourceIndex, error)
}

// polarity decides a verdict from the high-confidence candidates.
type polarity func(q model.VerificationQuery, strong []model.MatchCandidate) (model.VerdictStatus, string)

// indexed runs the shared flow for handlers backed by a bulk index.
type indexed struct {
	source  catalog.SourceConfig
	indexes Indexes
	rules   match.Rules
	useDOB  bool
	decide  polarity
}

func (h *indexed) Remote() bool { return false }

func (h *indexed) Verify(ctx context.Context, q model.VerificationQuery) model.Verdict {
	v := model.Verdict{DataSource: h.source.Name}

	mq := match.NewQuery(q)
	if !mq.Valid() {
		return errorVerdict(v, ErrMalformedQuery)
	}

	idx, err := h.indexes.EnsureLoaded(ctx, h.source.ID)
	if err != nil || idx.Len() == 0 {
		return errorVerdict(v, eris.Wrapf(ErrIndexUnavailable, "%s", h.source.Name))
	}

	cands := match.Find(mq, idx, h.rules)
	if h.useDOB {
		match.ConfirmDOB(mq, cands, h.rules)
	}
	strong := atLeast(cands, h.rules.HighConfidence)

	status, message := h.decide(q, strong)
	v.Status = status
	v.Candidates = redactedTop(cands, h.rules.MaxReturned)
	v.Details = details(h.source, q, cands, strong, h.rules, idx, "bulk_index_name_match")
	v.Details["message"] = message
	return v
}

func atLeast(cands []model.MatchCandidate, threshold int) []model.MatchCandidate {
	var out []model.MatchCandidate
	for _, c := range cands {
		if c.Score >= threshold {
			out = append(out, c)
		}
	}
	return out
}

func top(cands []model.MatchCandidate, n int) []model.MatchCandidate {
	if len(cands) > n {
		return cands[:n]
	}
	return cands
}

func errorVerdict(v model.Verdict, err error) model.Verdict {
	v.Status = model.StatusError
	v.Error = err.Error()
	if v.Details == nil {
		v.Details = map[string]any{}
	}
	return v
}
