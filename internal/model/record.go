package model

import "time"

// RecordKind classifies how a record's name fields are populated.
type RecordKind string

const (
	// KindIndividual records carry discrete first/last (and optional middle) names.
	KindIndividual RecordKind = "individual"
	// KindEntity records carry only a combined or organization name.
	KindEntity RecordKind = "entity"
)

// ExclusionRecord is one normalized row from a source's bulk dataset.
// Name fields are upper-cased and punctuation-stripped at ingest time.
type ExclusionRecord struct {
	Kind             RecordKind `json:"kind"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	MiddleName       string     `json:"middle_name,omitempty"`
	OrganizationName string     `json:"organization_name,omitempty"`
	ExclusionType    string     `json:"exclusion_type,omitempty"`
	ExclusionDate    *time.Time `json:"exclusion_date,omitempty"`
	State            string     `json:"state,omitempty"`
	NPI              string     `json:"npi,omitempty"`
	LicenseNumber    string     `json:"license_number,omitempty"`
	LicenseStatus    string     `json:"license_status,omitempty"`
	CaseNumber       string     `json:"case_number,omitempty"`
	DateOfBirth      string     `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	RawAddress       string     `json:"raw_address,omitempty"`
}

// HasDiscreteName reports whether the record can be matched field by field.
func (r ExclusionRecord) HasDiscreteName() bool {
	return r.Kind == KindIndividual && r.FirstName != "" && r.LastName != ""
}

// MatchBasis tags how a candidate matched.
type MatchBasis string

const (
	BasisExactName        MatchBasis = "exact-name"
	BasisPartialMiddle    MatchBasis = "partial-middle"
	BasisMismatchedMiddle MatchBasis = "mismatched-middle"
	BasisFullSubstring    MatchBasis = "substring-full-name"
	BasisSubstring        MatchBasis = "substring-in-combined-name"
	BasisTokens           MatchBasis = "tokens-in-combined-name"
)

// Rank orders bases for tie-breaking; lower ranks sort first.
func (b MatchBasis) Rank() int {
	switch b {
	case BasisExactName:
		return 0
	case BasisPartialMiddle:
		return 1
	case BasisMismatchedMiddle:
		return 2
	case BasisFullSubstring:
		return 3
	case BasisSubstring:
		return 4
	case BasisTokens:
		return 5
	default:
		return 6
	}
}

// MatchCandidate is one scored match of a query against an indexed record.
type MatchCandidate struct {
	Record     ExclusionRecord `json:"record"`
	Score      int             `json:"score"`
	Basis      MatchBasis      `json:"match_basis"`
	DOBMatched bool            `json:"dob_matched,omitempty"`
	Position   int             `json:"-"` // index order, used for stable ranking
}
