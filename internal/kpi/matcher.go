package kpi

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrNoMatch indicates no candidate matched the query under any strategy.
	ErrNoMatch = errors.New("no matching user")
	// ErrAmbiguousMatch indicates the winning strategy matched more than one candidate.
	ErrAmbiguousMatch = errors.New("ambiguous user match")
)

// MatchStrategy names one way of resolving a free-text identifier to a user.
type MatchStrategy string

const (
	MatchEmployeeID  MatchStrategy = "employee_id"
	MatchEmail       MatchStrategy = "email"
	MatchName        MatchStrategy = "name"
	MatchNamePartial MatchStrategy = "name_partial"
)

// DefaultMatchOrder is the priority order used when none is given.
var DefaultMatchOrder = []MatchStrategy{MatchEmployeeID, MatchEmail, MatchName, MatchNamePartial}

// Candidate is the subset of a user record the matcher compares against.
type Candidate struct {
	ID         uint
	Name       string
	Email      string
	EmployeeID string
}

// Matcher resolves identifiers from bulk rows to users. Strategies run in order;
// the first strategy producing any hit decides the outcome.
type Matcher struct {
	order []MatchStrategy
}

// NewMatcher builds a matcher with the given priority order.
func NewMatcher(order ...MatchStrategy) *Matcher {
	if len(order) == 0 {
		order = DefaultMatchOrder
	}
	return &Matcher{order: append([]MatchStrategy(nil), order...)}
}

// Order returns the strategy priority order.
func (m *Matcher) Order() []MatchStrategy {
	return append([]MatchStrategy(nil), m.order...)
}

// Match returns the single candidate picked by the highest-priority strategy with a hit.
func (m *Matcher) Match(query string, candidates []Candidate) (Candidate, MatchStrategy, error) {
	needle := foldText(query)
	if needle == "" {
		return Candidate{}, "", ErrNoMatch
	}

	for _, strategy := range m.order {
		hits := make([]Candidate, 0, 1)
		for _, candidate := range candidates {
			if matches(strategy, needle, candidate) {
				hits = append(hits, candidate)
			}
		}
		switch len(hits) {
		case 0:
			continue
		case 1:
			return hits[0], strategy, nil
		default:
			return Candidate{}, strategy, ErrAmbiguousMatch
		}
	}

	return Candidate{}, "", ErrNoMatch
}

func matches(strategy MatchStrategy, needle string, candidate Candidate) bool {
	switch strategy {
	case MatchEmployeeID:
		id := foldText(candidate.EmployeeID)
		return id != "" && id == needle
	case MatchEmail:
		email := foldText(candidate.Email)
		return email != "" && email == needle
	case MatchName:
		name := foldText(candidate.Name)
		return name != "" && name == needle
	case MatchNamePartial:
		name := foldText(candidate.Name)
		return name != "" && strings.Contains(name, needle)
	default:
		return false
	}
}

// foldText normalises unicode, case-folds and collapses whitespace.
func foldText(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
