package ingest

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/fetcher"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// fbiPage is one page of the FBI Wanted list API.
type fbiPage struct {
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Items []fbiItem `json:"items"`
}

type fbiItem struct {
	UID                  string   `json:"uid"`
	Title                string   `json:"title"`
	Aliases              []string `json:"aliases"`
	DatesOfBirthUsed     []string `json:"dates_of_birth_used"`
	PosterClassification string   `json:"poster_classification"`
	Subjects             []string `json:"subjects"`
	FieldOffices         []string `json:"field_offices"`
}

// pageURL sets the page and pageSize query parameters on base.
func pageURL(base string, page, size int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrap(err, "ingest: parse page url")
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(size))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetchFBI walks pages until a short page, the reported total, or MaxPages.
func fetchFBI(ctx context.Context, f fetcher.Fetcher, src catalog.SourceConfig) ([]model.ExclusionRecord, error) {
	size := src.PageSize
	if size <= 0 {
		size = 50
	}
	maxPages := src.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	var (
		out  []model.ExclusionRecord
		seen int
	)
	for page := 1; page <= maxPages; page++ {
		u, err := pageURL(src.ResolvedURL(), page, size)
		if err != nil {
			return nil, newError(KindConfig, src.ID, err)
		}
		body, err := f.Download(ctx, u)
		if err != nil {
			return nil, fetchError(src.ID, err)
		}
		p, err := fetcher.DecodeJSONObject[fbiPage](body)
		_ = body.Close()
		if err != nil {
			return nil, newError(KindParse, src.ID, err)
		}

		for _, item := range p.Items {
			out = append(out, fbiRecords(src, item)...)
		}
		seen += len(p.Items)

		zap.L().Debug("ingest: fbi page", zap.String("source", src.ID), zap.Int("page", page), zap.Int("items", len(p.Items)))
		if len(p.Items) < size || (p.Total > 0 && seen >= p.Total) {
			break
		}
	}
	return out, nil
}

// fbiRecords returns the title record plus one per alias. Titles are combined
// names, so they never match field by field.
func fbiRecords(src catalog.SourceConfig, item fbiItem) []model.ExclusionRecord {
	base := model.ExclusionRecord{
		Kind:          model.KindIndividual,
		ExclusionType: item.PosterClassification,
		CaseNumber:    item.UID,
		RawAddress:    strings.Join(item.FieldOffices, ", "),
	}
	if base.ExclusionType == "" {
		base.ExclusionType = strings.Join(item.Subjects, "; ")
	}
	for _, d := range item.DatesOfBirthUsed {
		if dob := parseDOB(d, src.DateLayouts); dob != "" {
			base.DateOfBirth = dob
			break
		}
	}

	names := append([]string{item.Title}, item.Aliases...)
	out := make([]model.ExclusionRecord, 0, len(names))
	for _, n := range names {
		// Titles sometimes carry a suffix such as "JOHN DOE - CYBER CRIME".
		n, _, _ = strings.Cut(n, " - ")
		if n = match.Normalize(n); n == "" {
			continue
		}
		rec := base
		rec.OrganizationName = n
		out = append(out, rec)
	}
	return out
}
