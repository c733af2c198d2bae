package ingest

import (
	"context"
	"io"
	"strings"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/fetcher"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// sdnEntry is the subset of an OFAC SDN list entry we index.
type sdnEntry struct {
	UID       string   `xml:"uid"`
	FirstName string   `xml:"firstName"`
	LastName  string   `xml:"lastName"`
	SDNType   string   `xml:"sdnType"`
	Programs  []string `xml:"programList>program"`
	AKAs      []struct {
		Category  string `xml:"category"`
		FirstName string `xml:"firstName"`
		LastName  string `xml:"lastName"`
	} `xml:"akaList>aka"`
	DatesOfBirth []string `xml:"dateOfBirthList>dateOfBirthItem>dateOfBirth"`
	Addresses    []struct {
		City    string `xml:"city"`
		Country string `xml:"country"`
	} `xml:"addressList>address"`
}

// parseOFAC emits one record per individual name, strong a.k.a. entries
// included. Weak aliases are skipped.
func parseOFAC(ctx context.Context, src catalog.SourceConfig, r io.Reader) ([]model.ExclusionRecord, error) {
	entries, errCh := fetcher.StreamXML[sdnEntry](ctx, r, "sdnEntry")

	var out []model.ExclusionRecord
	for e := range entries {
		individual := strings.EqualFold(e.SDNType, "Individual")
		if src.PersonsOnly && !individual {
			continue
		}

		base := model.ExclusionRecord{
			ExclusionType: strings.Join(e.Programs, ";"),
			CaseNumber:    e.UID,
			RawAddress:    ofacAddress(e),
		}
		for _, d := range e.DatesOfBirth {
			if dob := parseDOB(d, src.DateLayouts); dob != "" {
				base.DateOfBirth = dob
				break
			}
		}

		out = appendOFACName(out, base, individual, e.FirstName, e.LastName)
		for _, aka := range e.AKAs {
			if strings.EqualFold(aka.Category, "weak") {
				continue
			}
			out = appendOFACName(out, base, individual, aka.FirstName, aka.LastName)
		}
	}
	if err := <-errCh; err != nil {
		return nil, newError(KindParse, src.ID, err)
	}
	return out, nil
}

// appendOFACName splits OFAC's combined given-name field into first and
// middle.
func appendOFACName(out []model.ExclusionRecord, base model.ExclusionRecord, individual bool, given, last string) []model.ExclusionRecord {
	given, last = match.Normalize(given), match.Normalize(last)
	rec := base
	switch {
	case individual && given != "" && last != "":
		rec.Kind = model.KindIndividual
		first, middle, _ := strings.Cut(given, " ")
		rec.FirstName, rec.MiddleName, rec.LastName = first, middle, last
	case last != "":
		rec.Kind = model.KindEntity
		if individual {
			rec.Kind = model.KindIndividual
		}
		rec.OrganizationName = strings.TrimSpace(given + " " + last)
	default:
		return out
	}
	return append(out, rec)
}

func ofacAddress(e sdnEntry) string {
	if len(e.Addresses) == 0 {
		return ""
	}
	a := e.Addresses[0]
	parts := make([]string, 0, 2)
	for _, p := range []string{a.City, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
