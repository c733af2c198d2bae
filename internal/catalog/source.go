// Package catalog describes every verifiable source: where its bulk data lives,
// how its columns map to record fields, and how often it is refreshed.
package catalog

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Family groups sources that share a handler and verdict polarity.
type Family string

const (
	FederalExclusion Family = "federal_exclusion"
	StateMedicaid    Family = "state_medicaid"
	LicenseRegistry  Family = "license_registry"
	CriminalRegistry Family = "criminal_registry"
)

// FetchMode selects how the bulk artifact is obtained.
type FetchMode string

const (
	FetchFile      FetchMode = "file"      // single download over HTTP(S) or FTP
	FetchExport    FetchMode = "export"    // request export, wait, then download
	FetchPaginated FetchMode = "paginated" // JSON pages until exhausted
	FetchLive      FetchMode = "live"      // queried per request, never ingested
)

// Format selects the parser for the downloaded artifact.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatOFACXML Format = "ofac_xml"
	FormatFBIJSON Format = "fbi_json"
)

// Columns maps raw header names to record fields. Empty entries are unmapped.
type Columns struct {
	FirstName      string   `yaml:"first_name" mapstructure:"first_name"`
	LastName       string   `yaml:"last_name" mapstructure:"last_name"`
	MiddleName     string   `yaml:"middle_name" mapstructure:"middle_name"`
	Organization   string   `yaml:"organization" mapstructure:"organization"`
	FullName       string   `yaml:"full_name" mapstructure:"full_name"`
	Classification string   `yaml:"classification" mapstructure:"classification"`
	ExclusionType  string   `yaml:"exclusion_type" mapstructure:"exclusion_type"`
	ExclusionDate  string   `yaml:"exclusion_date" mapstructure:"exclusion_date"`
	State          string   `yaml:"state" mapstructure:"state"`
	NPI            string   `yaml:"npi" mapstructure:"npi"`
	LicenseNumber  string   `yaml:"license_number" mapstructure:"license_number"`
	LicenseStatus  string   `yaml:"license_status" mapstructure:"license_status"`
	CaseNumber     string   `yaml:"case_number" mapstructure:"case_number"`
	DateOfBirth    string   `yaml:"date_of_birth" mapstructure:"date_of_birth"`
	Address        []string `yaml:"address" mapstructure:"address"`
}

// Required returns the header names that must be present for the mapping to
// produce any names at all.
func (c Columns) Required() []string {
	var out []string
	if c.FullName != "" {
		out = append(out, c.FullName)
	} else {
		out = append(out, c.FirstName, c.LastName)
	}
	return out
}

// ExportConfig describes a "prepare, then fetch" provider handshake.
type ExportConfig struct {
	// ReadyURLPattern matches the download URL inside the request response.
	ReadyURLPattern string        `yaml:"ready_url_pattern" mapstructure:"ready_url_pattern"`
	InitialWait     time.Duration `yaml:"initial_wait" mapstructure:"initial_wait"`
	PollInterval    time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SourceConfig is the immutable description of one verifiable source.
type SourceConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Family          Family        `yaml:"family"`
	Jurisdiction    string        `yaml:"jurisdiction"`
	Fetch           FetchMode     `yaml:"fetch"`
	URL             string        `yaml:"url"`
	Format          Format        `yaml:"format"`
	Zipped          bool          `yaml:"zipped"`
	Sheet           string        `yaml:"sheet"`
	Columns         Columns       `yaml:"columns"`
	PersonValues    []string      `yaml:"person_values"`
	PersonsOnly     bool          `yaml:"persons_only"`
	DateLayouts     []string      `yaml:"date_layouts"`
	Export          ExportConfig  `yaml:"export"`
	PageSize        int           `yaml:"page_size"`
	MaxPages        int           `yaml:"max_pages"`
	Enabled         bool          `yaml:"enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// APIKey is resolved from configuration and substituted into URLs as
	// {api_key}. It is never serialized.
	APIKey string `yaml:"-"`
}

// Live reports whether the source is queried per request instead of indexed.
func (s SourceConfig) Live() bool { return s.Fetch == FetchLive }

// ResolvedURL returns URL with the API key placeholder substituted.
func (s SourceConfig) ResolvedURL() string {
	return strings.ReplaceAll(s.URL, "{api_key}", s.APIKey)
}

// IsPersonClass reports whether a classification value denotes an individual.
// A source without PersonValues treats every row as a candidate individual.
func (s SourceConfig) IsPersonClass(v string) bool {
	if len(s.PersonValues) == 0 {
		return true
	}
	v = strings.TrimSpace(v)
	for _, pv := range s.PersonValues {
		if strings.EqualFold(pv, v) {
			return true
		}
	}
	return false
}

// Validate checks that the config is internally consistent.
func (s SourceConfig) Validate() error {
	if s.ID == "" {
		return eris.New("catalog: source id is required")
	}
	switch s.Family {
	case FederalExclusion, StateMedicaid, LicenseRegistry, CriminalRegistry:
	default:
		return eris.Errorf("catalog: source %s: unknown family %q", s.ID, s.Family)
	}
	switch s.Fetch {
	case FetchLive:
		return nil
	case FetchFile, FetchExport, FetchPaginated:
	default:
		return eris.Errorf("catalog: source %s: unknown fetch mode %q", s.ID, s.Fetch)
	}
	if s.URL == "" {
		return eris.Errorf("catalog: source %s: url is required", s.ID)
	}
	switch s.Format {
	case FormatCSV, FormatXLSX:
		for _, col := range s.Columns.Required() {
			if col == "" {
				return eris.Errorf("catalog: source %s: columns need full_name or first_name+last_name", s.ID)
			}
		}
	case FormatOFACXML, FormatFBIJSON:
	default:
		return eris.Errorf("catalog: source %s: unknown format %q", s.ID, s.Format)
	}
	if s.Fetch == FetchExport && s.Export.ReadyURLPattern == "" {
		return eris.Errorf("catalog: source %s: export sources need ready_url_pattern", s.ID)
	}
	return nil
}
