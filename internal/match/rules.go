package match

// Rules is the scoring table. The values are heuristics carried over from
// observed behavior; thresholds downstream depend on their relative order.
type Rules struct {
	Exact            int `yaml:"exact" mapstructure:"exact"`
	PartialMiddle    int `yaml:"partial_middle" mapstructure:"partial_middle"`
	MismatchedMiddle int `yaml:"mismatched_middle" mapstructure:"mismatched_middle"`
	FullSubstring    int `yaml:"full_substring" mapstructure:"full_substring"`
	Substring        int `yaml:"substring" mapstructure:"substring"`
	Tokens           int `yaml:"tokens" mapstructure:"tokens"`
	DOBConfirmed     int `yaml:"dob_confirmed" mapstructure:"dob_confirmed"`

	// Floor is the minimum score returned at all.
	Floor int `yaml:"floor" mapstructure:"floor"`
	// HighConfidence is the minimum score that affects a verdict.
	HighConfidence int `yaml:"high_confidence" mapstructure:"high_confidence"`
	// MaxReturned bounds the candidates attached to a verdict.
	MaxReturned int `yaml:"max_returned" mapstructure:"max_returned"`
}

// DefaultRules returns the standard table.
func DefaultRules() Rules {
	return Rules{
		Exact:            100,
		PartialMiddle:    95,
		MismatchedMiddle: 85,
		FullSubstring:    95,
		Substring:        90,
		Tokens:           80,
		DOBConfirmed:     100,
		Floor:            80,
		HighConfidence:   90,
		MaxReturned:      5,
	}
}

// WithDefaults fills zero fields from DefaultRules.
func (r Rules) WithDefaults() Rules {
	d := DefaultRules()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&r.Exact, d.Exact)
	fill(&r.PartialMiddle, d.PartialMiddle)
	fill(&r.MismatchedMiddle, d.MismatchedMiddle)
	fill(&r.FullSubstring, d.FullSubstring)
	fill(&r.Substring, d.Substring)
	fill(&r.Tokens, d.Tokens)
	fill(&r.DOBConfirmed, d.DOBConfirmed)
	fill(&r.Floor, d.Floor)
	fill(&r.HighConfidence, d.HighConfidence)
	fill(&r.MaxReturned, d.MaxReturned)
	return r
}
