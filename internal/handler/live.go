package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/pkg/nsopw"
)

// LiveOptions configures a live registry handler.
type LiveOptions struct {
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Breaker *resilience.Breaker
}

// live queries an external search service per request.
type live struct {
	source  catalog.SourceConfig
	client  nsopw.Client
	rules   match.Rules
	opts    LiveOptions
	breaker *resilience.Breaker
}

// NewLive returns the criminal handler for a live name-search registry.
func NewLive(src catalog.SourceConfig, client nsopw.Client, rules match.Rules, opts LiveOptions) Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Retry.ShouldRetry == nil {
		opts.Retry.ShouldRetry = retryableLive
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger(src.ID, "search")
	}
	b := opts.Breaker
	if b == nil {
		b = resilience.NewBreaker(resilience.BreakerConfig{Name: src.ID})
	}
	return &live{source: src, client: client, rules: rules, opts: opts, breaker: b}
}

func (h *live) Remote() bool { return true }

func (h *live) Verify(ctx context.Context, q model.VerificationQuery) model.Verdict {
	v := model.Verdict{DataSource: h.source.Name}

	mq := match.NewQuery(q)
	if !mq.Valid() {
		return errorVerdict(v, ErrMalformedQuery)
	}

	var resp *nsopw.SearchResponse
	err := h.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = resilience.DoVal(ctx, h.opts.Retry, func(ctx context.Context) (*nsopw.SearchResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
			defer cancel()
			r, err := h.client.SearchByName(callCtx, nsopw.SearchRequest{FirstName: q.FirstName, LastName: q.LastName})
			return r, classifyLive(err)
		})
		return err
	})
	if err != nil {
		return errorVerdict(v, eris.Wrapf(err, "%s search", h.source.Name))
	}

	records := offenderRecords(resp.Offenders)
	cands := match.Find(mq, match.Records(records), h.rules)
	match.ConfirmDOB(mq, cands, h.rules)
	strong := atLeast(cands, h.rules.HighConfidence)

	status, message := recordFound(h.source.Name)(q, strong)
	v.Status = status
	v.Candidates = redactedTop(cands, h.rules.MaxReturned)
	v.Details = details(h.source, q, cands, strong, h.rules, nil, "live_api_search")
	v.Details["message"] = message
	v.Details["total_hits"] = resp.TotalHits
	return v
}

// classifyLive marks retryable service responses as transient.
func classifyLive(err error) error {
	var apiErr *nsopw.APIError
	if errors.As(err, &apiErr) && apiErr.Temporary() {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

func retryableLive(err error) bool {
	return resilience.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}

// offenderRecords converts offenders, and each alias, into matchable records.
func offenderRecords(offenders []nsopw.Offender) []model.ExclusionRecord {
	var out []model.ExclusionRecord
	for _, o := range offenders {
		dob := match.NormalizeDOB(o.DOB)
		addr := strings.TrimSpace(strings.Join(nonEmpty(o.City, o.State), ", "))
		for _, n := range append([]nsopw.Name{o.Name}, o.Aliases...) {
			first, last := match.Normalize(n.GivenName), match.Normalize(n.SurName)
			if first == "" || last == "" {
				continue
			}
			out = append(out, model.ExclusionRecord{
				Kind:          model.KindIndividual,
				FirstName:     first,
				LastName:      last,
				MiddleName:    match.Normalize(n.MiddleName),
				ExclusionType: fmt.Sprintf("registered offender (%s)", o.Jurisdiction),
				State:         o.Jurisdiction,
				DateOfBirth:   dob,
				RawAddress:    addr,
			})
		}
	}
	return out
}
