package kpi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var staff = []Candidate{
	{ID: 1, Name: "Ravi Kumar", Email: "ravi.kumar@example.com", EmployeeID: "FE-001"},
	{ID: 2, Name: "Ravi Kumar Singh", Email: "ravi.singh@example.com", EmployeeID: "FE-002"},
	{ID: 3, Name: "Anita Desai", Email: "anita@example.com", EmployeeID: "FE-003"},
	{ID: 4, Name: "FE-001", Email: "odd@example.com", EmployeeID: "FE-104"},
}

func TestMatcherPrefersEmployeeIDOverName(t *testing.T) {
	matcher := NewMatcher()

	candidate, strategy, err := matcher.Match("fe-001", staff)
	require.NoError(t, err)
	require.Equal(t, MatchEmployeeID, strategy)
	require.Equal(t, uint(1), candidate.ID)
}

func TestMatcherEmailIsCaseInsensitive(t *testing.T) {
	candidate, strategy, err := NewMatcher().Match("  ANITA@Example.com ", staff)
	require.NoError(t, err)
	require.Equal(t, MatchEmail, strategy)
	require.Equal(t, uint(3), candidate.ID)
}

func TestMatcherExactNameBeatsPartial(t *testing.T) {
	candidate, strategy, err := NewMatcher().Match("ravi   KUMAR", staff)
	require.NoError(t, err)
	require.Equal(t, MatchName, strategy)
	require.Equal(t, uint(1), candidate.ID)
}

func TestMatcherPartialNameAmbiguity(t *testing.T) {
	_, strategy, err := NewMatcher().Match("ravi", staff)
	require.ErrorIs(t, err, ErrAmbiguousMatch)
	require.Equal(t, MatchNamePartial, strategy)

	candidate, _, err := NewMatcher().Match("desai", staff)
	require.NoError(t, err)
	require.Equal(t, uint(3), candidate.ID)
}

func TestMatcherCustomOrder(t *testing.T) {
	matcher := NewMatcher(MatchName, MatchEmployeeID)

	candidate, strategy, err := matcher.Match("FE-001", staff)
	require.NoError(t, err)
	require.Equal(t, MatchName, strategy)
	require.Equal(t, uint(4), candidate.ID)
}

func TestMatcherNoMatch(t *testing.T) {
	_, _, err := NewMatcher().Match("nobody", staff)
	require.ErrorIs(t, err, ErrNoMatch)

	_, _, err = NewMatcher().Match("   ", staff)
	require.ErrorIs(t, err, ErrNoMatch)
}
