package handler

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// NewLicense returns the handler for license registries. Polarity is the
// reverse of exclusion lists: a verifying match means PASSED.
func NewLicense(src catalog.SourceConfig, indexes Indexes, rules match.Rules) Handler {
	return &indexed{
		source:  src,
		indexes: indexes,
		rules:   rules,
		decide:  licensedOnMatch(src.Name),
	}
}

func licensedOnMatch(label string) polarity {
	return func(q model.VerificationQuery, strong []model.MatchCandidate) (model.VerdictStatus, string) {
		want := canonicalLicense(q.LicenseNumber)
		for _, c := range strong {
			have := canonicalLicense(c.Record.LicenseNumber)
			if want != "" && have != "" && want != have {
				continue
			}
			return model.StatusPassed, fmt.Sprintf("License verified in %s", label)
		}
		if len(strong) > 0 && want != "" {
			return model.StatusFailed, fmt.Sprintf("Name found in %s but license number does not match", label)
		}
		return model.StatusFailed, "No license record found in " + label
	}
}

// canonicalLicense upper-cases and drops separators so "ME 12-345" equals
// "me12345".
func canonicalLicense(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
