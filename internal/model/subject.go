package model

import "strings"

// Subject is the read-only profile of an individual being screened.
type Subject struct {
	ID            string `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	MiddleName    string `json:"middle_name,omitempty"`
	DateOfBirth   string `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	LicenseNumber string `json:"license_number,omitempty"`
	LicenseType   string `json:"license_type,omitempty"`
	LicenseState  string `json:"license_state,omitempty"`
	NPI           string `json:"npi,omitempty"`
}

// VerificationQuery is the input to a single source check. It is built
// from a Subject per call and never mutated afterwards.
type VerificationQuery struct {
	SubjectID     string `json:"subject_id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	MiddleName    string `json:"middle_name,omitempty"`
	DateOfBirth   string `json:"date_of_birth,omitempty"`
	LicenseNumber string `json:"license_number,omitempty"`
	LicenseState  string `json:"license_state,omitempty"`
	NPI           string `json:"npi,omitempty"`
	Type          string `json:"verification_type"`
}

// QueryFor builds the query for one verification type.
func QueryFor(s Subject, verificationType string) VerificationQuery {
	return VerificationQuery{
		SubjectID:     s.ID,
		FirstName:     strings.TrimSpace(s.FirstName),
		LastName:      strings.TrimSpace(s.LastName),
		MiddleName:    strings.TrimSpace(s.MiddleName),
		DateOfBirth:   strings.TrimSpace(s.DateOfBirth),
		LicenseNumber: strings.TrimSpace(s.LicenseNumber),
		LicenseState:  strings.ToUpper(strings.TrimSpace(s.LicenseState)),
		NPI:           strings.TrimSpace(s.NPI),
		Type:          verificationType,
	}
}
