package handler

import (
	"fmt"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// NewExclusion returns the handler for federal and state Medicaid exclusion
// lists. A high-confidence match means the subject is excluded.
func NewExclusion(src catalog.SourceConfig, indexes Indexes, rules match.Rules) Handler {
	return &indexed{
		source:  src,
		indexes: indexes,
		rules:   rules,
		decide:  excludedOnMatch(src.Name),
	}
}

func excludedOnMatch(label string) polarity {
	return func(_ model.VerificationQuery, strong []model.MatchCandidate) (model.VerdictStatus, string) {
		if len(strong) == 0 {
			return model.StatusPassed, "No matches found in " + label
		}
		return model.StatusFailed, fmt.Sprintf("Found %d potential match(es) in %s", len(strong), label)
	}
}
