// Package match normalizes names and scores queries against indexed records
// using a fixed rule table.
package match

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var punctuation = strings.NewReplacer(
	".", "",
	",", "",
	"'", "",
	"-", " ",
)

// Normalize standardizes a name for matching by:
//  1. Folding diacritics (JOSÉ -> JOSE)
//  2. Converting to uppercase
//  3. Stripping periods, commas and apostrophes
//  4. Turning hyphens into spaces
//  5. Collapsing whitespace and trimming
//
// Normalize is idempotent.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	name = foldDiacritics(name)
	name = strings.ToUpper(name)
	name = punctuation.Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var dobLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
	time.RFC3339,
}

// NormalizeDOB converts a date of birth in any common layout to YYYY-MM-DD.
// Unparseable input yields "".
func NormalizeDOB(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
