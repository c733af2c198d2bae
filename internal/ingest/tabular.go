package ingest

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/catalog"
	"github.com/sells-group/verify-cli/internal/match"
	"github.com/sells-group/verify-cli/internal/model"
)

// columnMap resolves a source's configured header names to row positions.
type columnMap struct {
	src     catalog.SourceConfig
	pos     map[string]int
	address []int
}

func headerKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// newColumnMap checks that every required column is present in header.
func newColumnMap(src catalog.SourceConfig, header []string) (*columnMap, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		k := headerKey(h)
		if _, dup := pos[k]; !dup {
			pos[k] = i
		}
	}

	var missing []string
	for _, col := range src.Columns.Required() {
		if _, ok := pos[headerKey(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("ingest: missing required columns %v", missing)
	}

	cm := &columnMap{src: src, pos: pos}
	for _, a := range src.Columns.Address {
		if i, ok := pos[headerKey(a)]; ok {
			cm.address = append(cm.address, i)
		}
	}
	return cm, nil
}

func (c *columnMap) get(row []string, col string) string {
	if col == "" {
		return ""
	}
	i, ok := c.pos[headerKey(col)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c *columnMap) has(col string) bool {
	if col == "" {
		return false
	}
	_, ok := c.pos[headerKey(col)]
	return ok
}

// record converts one data row. keep is false for rows without any usable
// name, and for entities when the source is persons-only.
func (c *columnMap) record(row []string) (model.ExclusionRecord, bool) {
	cols := c.src.Columns

	person := true
	classified := c.has(cols.Classification)
	if classified {
		person = c.src.IsPersonClass(c.get(row, cols.Classification))
	}
	if c.src.PersonsOnly && !person {
		return model.ExclusionRecord{}, false
	}

	rec := model.ExclusionRecord{
		ExclusionType: c.get(row, cols.ExclusionType),
		ExclusionDate: parseDate(c.get(row, cols.ExclusionDate), c.src.DateLayouts),
		State:         strings.ToUpper(c.get(row, cols.State)),
		NPI:           cleanNPI(c.get(row, cols.NPI)),
		LicenseNumber: strings.ToUpper(c.get(row, cols.LicenseNumber)),
		LicenseStatus: c.get(row, cols.LicenseStatus),
		CaseNumber:    c.get(row, cols.CaseNumber),
		DateOfBirth:   parseDOB(c.get(row, cols.DateOfBirth), c.src.DateLayouts),
		RawAddress:    c.addressOf(row),
	}

	first := match.Normalize(c.get(row, cols.FirstName))
	last := match.Normalize(c.get(row, cols.LastName))
	if person && first != "" && last != "" {
		rec.Kind = model.KindIndividual
		rec.FirstName = first
		rec.LastName = last
		rec.MiddleName = match.Normalize(c.get(row, cols.MiddleName))
		return rec, true
	}

	if full := match.Normalize(c.get(row, cols.FullName)); full != "" {
		rec.OrganizationName = full
		rec.Kind = model.KindIndividual
		if classified && !person {
			rec.Kind = model.KindEntity
		}
		return rec, true
	}

	if org := match.Normalize(c.get(row, cols.Organization)); org != "" {
		if c.src.PersonsOnly {
			return model.ExclusionRecord{}, false
		}
		rec.OrganizationName = org
		rec.Kind = model.KindEntity
		return rec, true
	}

	return model.ExclusionRecord{}, false
}

func (c *columnMap) addressOf(row []string) string {
	parts := make([]string, 0, len(c.address))
	for _, i := range c.address {
		if i < len(row) {
			if v := strings.TrimSpace(row[i]); v != "" {
				parts = append(parts, v)
			}
		}
	}
	return strings.Join(parts, ", ")
}

// cleanNPI drops placeholder NPIs made only of zeros.
func cleanNPI(s string) string {
	if strings.Trim(s, "0") == "" {
		return ""
	}
	return s
}

func parseDate(s string, layouts []string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	if dob := match.NormalizeDOB(s); dob != "" {
		t, _ := time.Parse("2006-01-02", dob)
		return &t
	}
	return nil
}

func parseDOB(s string, layouts []string) string {
	if s == "" || strings.Trim(s, "0") == "" {
		return ""
	}
	if t := parseDate(s, layouts); t != nil {
		return t.Format("2006-01-02")
	}
	return ""
}

// tabularBuilder accumulates records from header-first row streams.
type tabularBuilder struct {
	src     catalog.SourceConfig
	cols    *columnMap
	records []model.ExclusionRecord
	rows    int
	skipped int
}

func (b *tabularBuilder) add(row []string) error {
	if b.cols == nil {
		if isBlank(row) {
			return nil
		}
		cm, err := newColumnMap(b.src, row)
		if err != nil {
			return newError(KindSchemaMismatch, b.src.ID, err)
		}
		b.cols = cm
		return nil
	}
	if isBlank(row) {
		return nil
	}
	b.rows++
	rec, ok := b.cols.record(row)
	if !ok {
		b.skipped++
		return nil
	}
	b.records = append(b.records, rec)
	return nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
