package match

import (
	"sort"
	"strings"

	"github.com/sells-group/verify-cli/internal/model"
)

// Query is a normalized name query.
type Query struct {
	First  string
	Last   string
	Middle string
	DOB    string // YYYY-MM-DD or ""
}

// NewQuery normalizes the name fields of a verification query.
func NewQuery(q model.VerificationQuery) Query {
	return Query{
		First:  Normalize(q.FirstName),
		Last:   Normalize(q.LastName),
		Middle: Normalize(q.MiddleName),
		DOB:    NormalizeDOB(q.DateOfBirth),
	}
}

// Valid reports whether the query has enough to match on.
func (q Query) Valid() bool {
	return q.First != "" && q.Last != ""
}

// Score rates one record against the query. ok is false when no rule applies.
func Score(q Query, rec model.ExclusionRecord, rules Rules) (model.MatchCandidate, bool) {
	if !q.Valid() {
		return model.MatchCandidate{}, false
	}
	if rec.HasDiscreteName() {
		return scoreDiscrete(q, rec, rules)
	}
	return scoreCombined(q, rec, rules)
}

func scoreDiscrete(q Query, rec model.ExclusionRecord, rules Rules) (model.MatchCandidate, bool) {
	if rec.FirstName != q.First || rec.LastName != q.Last {
		return model.MatchCandidate{}, false
	}

	c := model.MatchCandidate{Record: rec, Score: rules.Exact, Basis: model.BasisExactName}
	if q.Middle == "" || rec.MiddleName == "" || q.Middle == rec.MiddleName {
		return c, true
	}

	if strings.HasPrefix(q.Middle, rec.MiddleName) || strings.HasPrefix(rec.MiddleName, q.Middle) {
		c.Score = rules.PartialMiddle
		c.Basis = model.BasisPartialMiddle
		return c, true
	}

	c.Score = rules.MismatchedMiddle
	c.Basis = model.BasisMismatchedMiddle
	return c, true
}

func scoreCombined(q Query, rec model.ExclusionRecord, rules Rules) (model.MatchCandidate, bool) {
	combined := combinedName(rec)
	if combined == "" {
		return model.MatchCandidate{}, false
	}
	padded := " " + combined + " "
	c := model.MatchCandidate{Record: rec}

	if q.Middle != "" {
		if containsPhrase(padded, q.First+" "+q.Middle+" "+q.Last) ||
			containsPhrase(padded, q.Last+" "+q.First+" "+q.Middle) {
			c.Score = rules.FullSubstring
			c.Basis = model.BasisFullSubstring
			return c, true
		}
	}

	if containsPhrase(padded, q.First+" "+q.Last) || containsPhrase(padded, q.Last+" "+q.First) {
		c.Score = rules.Substring
		c.Basis = model.BasisSubstring
		return c, true
	}

	if containsPhrase(padded, q.First) && containsPhrase(padded, q.Last) {
		c.Score = rules.Tokens
		c.Basis = model.BasisTokens
		return c, true
	}

	return model.MatchCandidate{}, false
}

// containsPhrase reports whether phrase occurs on word boundaries inside
// padded, which must already be wrapped in single spaces.
func containsPhrase(padded, phrase string) bool {
	return strings.Contains(padded, " "+phrase+" ")
}

func combinedName(rec model.ExclusionRecord) string {
	if rec.OrganizationName != "" {
		return rec.OrganizationName
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{rec.FirstName, rec.MiddleName, rec.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Corpus is a read-only collection of records that can narrow the scan for a
// last name. Probe returns the positions worth scoring, in index order.
type Corpus interface {
	Len() int
	Record(i int) model.ExclusionRecord
	Probe(last string) []int
}

// Find scores every probed record, drops candidates below the floor, and
// returns the rest ranked.
func Find(q Query, c Corpus, rules Rules) []model.MatchCandidate {
	if !q.Valid() || c == nil {
		return nil
	}
	var out []model.MatchCandidate
	for _, pos := range c.Probe(q.Last) {
		cand, ok := Score(q, c.Record(pos), rules)
		if !ok || cand.Score < rules.Floor {
			continue
		}
		cand.Position = pos
		out = append(out, cand)
	}
	Rank(out)
	return out
}

// ConfirmDOB upgrades candidates whose record date of birth equals the query's
// and re-ranks. It is a no-op when the query carries no DOB.
func ConfirmDOB(q Query, cands []model.MatchCandidate, rules Rules) {
	if q.DOB == "" {
		return
	}
	for i := range cands {
		if cands[i].Record.DateOfBirth != "" && cands[i].Record.DateOfBirth == q.DOB {
			cands[i].DOBMatched = true
			if cands[i].Score < rules.DOBConfirmed {
				cands[i].Score = rules.DOBConfirmed
			}
		}
	}
	Rank(cands)
}

// Rank orders candidates by score, then basis, then index position.
func Rank(cands []model.MatchCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if ri, rj := cands[i].Basis.Rank(), cands[j].Basis.Rank(); ri != rj {
			return ri < rj
		}
		return cands[i].Position < cands[j].Position
	})
}

// CountAtLeast returns how many candidates score at or above threshold.
func CountAtLeast(cands []model.MatchCandidate, threshold int) int {
	n := 0
	for _, c := range cands {
		if c.Score >= threshold {
			n++
		}
	}
	return n
}

// Records adapts a plain slice to Corpus without narrowing.
type Records []model.ExclusionRecord

// Len implements Corpus.
func (r Records) Len() int { return len(r) }

// Record implements Corpus.
func (r Records) Record(i int) model.ExclusionRecord { return r[i] }

// Probe implements Corpus by returning every position.
func (r Records) Probe(string) []int {
	out := make([]int, len(r))
	for i := range r {
		out[i] = i
	}
	return out
}
