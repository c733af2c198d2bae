package catalog

import "time"

const day = 24 * time.Hour

// Defaults returns the built-in source catalog in registration order.
func Defaults() []SourceConfig {
	return []SourceConfig{
		{
			ID:           "oig",
			Name:         "OIG LEIE Database",
			Family:       FederalExclusion,
			Jurisdiction: "US",
			Fetch:        FetchFile,
			URL:          "https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv",
			Format:       FormatCSV,
			Columns: Columns{
				FirstName:     "FIRSTNAME",
				LastName:      "LASTNAME",
				MiddleName:    "MIDNAME",
				Organization:  "BUSNAME",
				ExclusionType: "EXCLTYPE",
				ExclusionDate: "EXCLDATE",
				State:         "STATE",
				NPI:           "NPI",
				DateOfBirth:   "DOB",
				Address:       []string{"ADDRESS", "CITY", "STATE", "ZIP"},
			},
			DateLayouts:     []string{"20060102"},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:           "sam",
			Name:         "SAM.gov Exclusions",
			Family:       FederalExclusion,
			Jurisdiction: "US",
			Fetch:        FetchExport,
			URL:          "https://api.sam.gov/entity-information/v4/exclusions?api_key={api_key}&format=CSV",
			Format:       FormatCSV,
			Zipped:       true,
			Columns: Columns{
				FirstName:      "First",
				LastName:       "Last",
				MiddleName:     "Middle",
				FullName:       "Name",
				Classification: "Classification",
				ExclusionType:  "Exclusion Type",
				ExclusionDate:  "Active Date",
				State:          "State / Province",
				NPI:            "NPI",
				CaseNumber:     "SAM Number",
				Address:        []string{"Address 1", "Address 2", "City", "State / Province", "Zip Code"},
			},
			PersonValues: []string{"Individual"},
			PersonsOnly:  true,
			DateLayouts:  []string{"01/02/2006", "2006-01-02"},
			Export: ExportConfig{
				ReadyURLPattern: `https://api\.sam\.gov/entity-information/v4/download-exclusions\?[^\s"']+`,
				InitialWait:     30 * time.Second,
				PollInterval:    15 * time.Second,
				Timeout:         20 * time.Minute,
			},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:              "ofac",
			Name:            "OFAC SDN List",
			Family:          FederalExclusion,
			Jurisdiction:    "US",
			Fetch:           FetchFile,
			URL:             "https://sanctionslistservice.ofac.treas.gov/api/PublicationPreview/exports/SDN.XML",
			Format:          FormatOFACXML,
			PersonsOnly:     true,
			DateLayouts:     []string{"02 Jan 2006", "2006"},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:           "medicaid_ny",
			Name:         "NY OMIG Medicaid Exclusion List",
			Family:       StateMedicaid,
			Jurisdiction: "NY",
			Fetch:        FetchFile,
			URL:          "https://omig.ny.gov/sites/default/files/exclusions/exclusions.csv",
			Format:       FormatCSV,
			Columns: Columns{
				FullName:      "NAME",
				ExclusionType: "ACTION TYPE",
				ExclusionDate: "EFFECTIVE DATE",
				NPI:           "NPI",
				LicenseNumber: "LICENSE",
				Address:       []string{"CITY", "STATE"},
			},
			DateLayouts:     []string{"01/02/2006", "2006-01-02"},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:           "medicaid_tx",
			Name:         "TX HHS-OIG Exclusion List",
			Family:       StateMedicaid,
			Jurisdiction: "TX",
			Fetch:        FetchFile,
			URL:          "https://oig.hhs.texas.gov/sites/default/files/documents/exclusions.xlsx",
			Format:       FormatXLSX,
			Columns: Columns{
				FirstName:     "First Name",
				LastName:      "Last Name",
				MiddleName:    "Mid Initial",
				Organization:  "Company Name",
				NPI:           "NPI",
				LicenseNumber: "License Number",
				ExclusionDate: "Start Date",
			},
			DateLayouts:     []string{"01/02/2006", "1/2/2006", "2006-01-02"},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:           "medicaid_ca",
			Name:         "Medi-Cal Suspended and Ineligible Provider List",
			Family:       StateMedicaid,
			Jurisdiction: "CA",
			Fetch:        FetchFile,
			URL:          "https://files.medi-cal.ca.gov/pubsdoco/SandILanding/suspall.csv",
			Format:       FormatCSV,
			Columns: Columns{
				FirstName:     "First Name",
				LastName:      "Last Name",
				MiddleName:    "Middle Name",
				ExclusionType: "Provider Type",
				LicenseNumber: "License Number",
				CaseNumber:    "Provider Number",
				ExclusionDate: "Date of Suspension",
				Address:       []string{"Address"},
			},
			DateLayouts:     []string{"01/02/2006", "2006-01-02"},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:           "license_fl",
			Name:         "Florida DOH License Verification",
			Family:       LicenseRegistry,
			Jurisdiction: "FL",
			Fetch:        FetchFile,
			URL:          "https://mqa-internet.doh.state.fl.us/downloadnet/Licensure.csv",
			Format:       FormatCSV,
			Columns: Columns{
				FirstName:     "First Name",
				LastName:      "Last Name",
				MiddleName:    "Middle Name",
				LicenseNumber: "License Number",
				LicenseStatus: "License Status",
				ExclusionType: "Profession",
				State:         "State",
			},
			Enabled:         true,
			RefreshInterval: 7 * day,
		},
		{
			ID:              "fbi_wanted",
			Name:            "FBI Most Wanted",
			Family:          CriminalRegistry,
			Jurisdiction:    "US",
			Fetch:           FetchPaginated,
			URL:             "https://api.fbi.gov/wanted/v1/list",
			Format:          FormatFBIJSON,
			PageSize:        50,
			MaxPages:        40,
			DateLayouts:     []string{"January 2, 2006", "2006-01-02"},
			Enabled:         true,
			RefreshInterval: day,
		},
		{
			ID:           "nsopw",
			Name:         "NSOPW National Sex Offender Registry",
			Family:       CriminalRegistry,
			Jurisdiction: "US",
			Fetch:        FetchLive,
			Enabled:      true,
		},
	}
}
