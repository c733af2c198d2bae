package handler

import (
	"fmt"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// NewCriminal returns the handler for indexed criminal registries. A
// supplied DOB that equals a record's DOB lifts that candidate to the
// confirmed score.
func NewCriminal(src catalog.SourceConfig, indexes Indexes, rules match.Rules) Handler {
	return &indexed{
		source:  src,
		indexes: indexes,
		rules:   rules,
		useDOB:  true,
		decide:  recordFound(src.Name),
	}
}

func recordFound(label string) polarity {
	return func(_ model.VerificationQuery, strong []model.MatchCandidate) (model.VerdictStatus, string) {
		if len(strong) == 0 {
			return model.StatusPassed, "No records found in " + label
		}
		return model.StatusFailed, fmt.Sprintf("Found %d potential record(s) in %s", len(strong), label)
	}
}
