package handler

import (
	"strings"
	"time"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/index"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// details builds the common results map. Only redacted candidates leave the
// handler, here and in Verdict.Candidates.
func details(src catalog.SourceConfig, q model.VerificationQuery, all, strong []model.MatchCandidate, rules match.Rules, idx *index.SourceIndex, method string) map[string]any {
	shown := top(all, rules.MaxReturned)
	matches := make([]map[string]any, 0, len(shown))
	for _, c := range shown {
		matches = append(matches, redact(c))
	}

	info := map[string]any{
		"source":              src.Name,
		"verification_method": method,
	}
	if idx != nil {
		info["total_records_in_index"] = idx.Len()
		info["last_refreshed"] = idx.LoadedAt.UTC().Format(time.RFC3339)
	}

	return map[string]any{
		"total_candidates":      len(all),
		"high_confidence_count": len(strong),
		"matches":               matches,
		"search_criteria":       searchCriteria(q),
		"database_info":         info,
	}
}

func searchCriteria(q model.VerificationQuery) map[string]any {
	sc := map[string]any{
		"first_name": q.FirstName,
		"last_name":  q.LastName,
	}
	if q.MiddleName != "" {
		sc["middle_name"] = q.MiddleName
	}
	if y := yearOf(q.DateOfBirth); y != "" {
		sc["birth_year"] = y
	}
	if q.LicenseNumber != "" {
		sc["license_number"] = Mask(q.LicenseNumber)
	}
	if q.LicenseState != "" {
		sc["license_state"] = q.LicenseState
	}
	if q.NPI != "" {
		sc["npi"] = Mask(q.NPI)
	}
	return sc
}

// redact keeps what a reviewer needs to adjudicate a match. Identifiers are
// masked to the last four characters, DOB is reduced to the year, and the
// address is dropped.
func redact(c model.MatchCandidate) map[string]any {
	r := c.Record
	m := map[string]any{
		"score":       c.Score,
		"match_basis": string(c.Basis),
		"kind":        string(r.Kind),
	}
	if r.HasDiscreteName() {
		m["name"] = strings.Join(nonEmpty(r.FirstName, r.MiddleName, r.LastName), " ")
	} else {
		m["name"] = r.OrganizationName
	}
	if c.DOBMatched {
		m["dob_matched"] = true
	}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("exclusion_type", r.ExclusionType)
	put("state", r.State)
	put("license_status", r.LicenseStatus)
	put("npi", Mask(r.NPI))
	put("license_number", Mask(r.LicenseNumber))
	put("case_number", Mask(r.CaseNumber))
	put("birth_year", yearOf(r.DateOfBirth))
	if r.ExclusionDate != nil {
		m["exclusion_date"] = r.ExclusionDate.Format("2006-01-02")
	}
	return m
}

// redactedTop copies the first n candidates with their records masked the
// same way redact does, so persisted verdicts never hold raw identifiers.
func redactedTop(cands []model.MatchCandidate, n int) []model.MatchCandidate {
	shown := top(cands, n)
	if len(shown) == 0 {
		return nil
	}
	out := make([]model.MatchCandidate, len(shown))
	for i, c := range shown {
		r := c.Record
		r.NPI = Mask(r.NPI)
		r.LicenseNumber = Mask(r.LicenseNumber)
		r.CaseNumber = Mask(r.CaseNumber)
		r.DateOfBirth = ""
		r.RawAddress = ""
		c.Record = r
		out[i] = c
	}
	return out
}

// Mask replaces all but the last four characters with '*'.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}

func yearOf(dob string) string {
	if d := match.NormalizeDOB(dob); d != "" {
		return d[:4]
	}
	return ""
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
