// Package roster reads subject profiles from CSV or XLSX exports.
package roster

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/fetcher"
	"github.com/sells-group/verify-cli/internal/model"
)

// columns maps a subject field to the header names accepted for it.
var columns = map[string][]string{
	"id":             {"id", "subject_id", "employee_id"},
	"first_name":     {"first_name", "firstname", "first"},
	"last_name":      {"last_name", "lastname", "last"},
	"middle_name":    {"middle_name", "middlename", "middle", "mi"},
	"date_of_birth":  {"date_of_birth", "dob", "birth_date"},
	"license_number": {"license_number", "license_no", "license"},
	"license_type":   {"license_type"},
	"license_state":  {"license_state", "state"},
	"npi":            {"npi"},
}

// ReadFile loads subjects from path. Files ending in .xlsx are read as
// spreadsheets; everything else as CSV.
func ReadFile(ctx context.Context, path string) ([]model.Subject, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, eris.Wrap(err, "roster: read xlsx")
		}
		return FromRows(rows)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "roster: open csv")
	}
	defer f.Close()
	return ParseCSV(ctx, f)
}

// ParseCSV reads a header row followed by one subject per row.
func ParseCSV(ctx context.Context, r io.Reader) ([]model.Subject, error) {
	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{LazyQuotes: true, TrimSpace: true})
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "roster: read csv")
	}
	return FromRows(rows)
}

// FromRows converts a header row plus data rows. Rows without an id, first
// name or last name are skipped; a repeated id keeps its last row.
func FromRows(rows [][]string) ([]model.Subject, error) {
	if len(rows) < 2 {
		return nil, eris.New("roster: file has no data rows")
	}

	colIdx := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	idx := make(map[string]int, len(columns))
	for field, names := range columns {
		for _, n := range names {
			if i, ok := colIdx[n]; ok {
				idx[field] = i
				break
			}
		}
	}
	for _, field := range []string{"id", "first_name", "last_name"} {
		if _, ok := idx[field]; !ok {
			return nil, eris.Errorf("roster: missing required column %q", field)
		}
	}

	pos := make(map[string]int)
	var out []model.Subject
	for _, row := range rows[1:] {
		get := func(field string) string {
			i, ok := idx[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		s := model.Subject{
			ID:            get("id"),
			FirstName:     get("first_name"),
			LastName:      get("last_name"),
			MiddleName:    get("middle_name"),
			DateOfBirth:   get("date_of_birth"),
			LicenseNumber: get("license_number"),
			LicenseType:   get("license_type"),
			LicenseState:  strings.ToUpper(get("license_state")),
			NPI:           get("npi"),
		}
		if s.ID == "" || s.FirstName == "" || s.LastName == "" {
			continue
		}
		if i, seen := pos[s.ID]; seen {
			out[i] = s
			continue
		}
		pos[s.ID] = len(out)
		out = append(out, s)
	}
	return out, nil
}
