package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryFor(t *testing.T) {
	s := Subject{ID: "s1", FirstName: " Jane ", LastName: "Doe", LicenseState: " fl ", LicenseNumber: " ME123 "}
	q := QueryFor(s, "license")
	assert.Equal(t, "s1", q.SubjectID)
	assert.Equal(t, "Jane", q.FirstName)
	assert.Equal(t, "FL", q.LicenseState)
	assert.Equal(t, "ME123", q.LicenseNumber)
	assert.Equal(t, "license", q.Type)
}

func TestVerdictStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPassed.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestHasDiscreteName(t *testing.T) {
	assert.True(t, ExclusionRecord{Kind: KindIndividual, FirstName: "A", LastName: "B"}.HasDiscreteName())
	assert.False(t, ExclusionRecord{Kind: KindIndividual, LastName: "B"}.HasDiscreteName())
	assert.False(t, ExclusionRecord{Kind: KindEntity, FirstName: "A", LastName: "B"}.HasDiscreteName())
}

func TestMatchBasis_Rank(t *testing.T) {
	assert.Less(t, BasisExactName.Rank(), BasisPartialMiddle.Rank())
	assert.Less(t, BasisSubstring.Rank(), BasisTokens.Rank())
	assert.Equal(t, 6, MatchBasis("other").Rank())
}
