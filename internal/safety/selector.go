package safety

import (
	"errors"

	"github.com/saferoute/saferoute/internal/incident"
)

// ErrNoCandidates is returned when there is nothing to select from.
var ErrNoCandidates = errors.New("no route candidates")

// Role is the label a route earns during selection.
type Role string

const (
	RoleFastest          Role = "fastest"
	RoleSafest           Role = "safest"
	RoleFastestAndSafest Role = "fastest_and_safest"
)

// Candidate is one alternative path between an origin and a destination.
type Candidate struct {
	// Polyline is ordered start to end.
	Polyline        []Point
	DistanceMeters  float64
	DurationSeconds float64
	Summary         string
}

// ScoredRoute is a candidate annotated with its analysis. Candidates are never modified.
type ScoredRoute struct {
	// Index is the position in Selection.Routes.
	Index int
	// CandidateIndex is the position in the input candidate list.
	CandidateIndex int

	Candidate    Candidate
	Score        SafetyScore
	RiskSegments []RiskSegment
	Role         Role
}

// Selection is the outcome of route selection.
type Selection struct {
	// Routes has one entry (fastest_and_safest) or two (fastest, then safest).
	Routes []ScoredRoute

	// DefaultIndex is the route to show first.
	DefaultIndex int
}

// Default returns the route at DefaultIndex.
func (s Selection) Default() ScoredRoute {
	return s.Routes[s.DefaultIndex]
}

// SelectAndLabel scores every candidate, picks the fastest (minimum duration)
// and the safest (maximum score), and labels them. Ties keep the earliest
// candidate. When fastest and safest share distance and duration they are
// merged into a single fastest_and_safest entry.
func (s *Scorer) SelectAndLabel(candidates []Candidate, incidents []incident.Record) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}

	index := prepare(incidents)

	scored := make([]ScoredRoute, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredRoute{
			CandidateIndex: i,
			Candidate:      c,
			Score:          s.score(c.Polyline, index),
			RiskSegments:   s.findRiskSegments(c.Polyline, index),
		}
	}

	fastest, safest := 0, 0
	for i := 1; i < len(scored); i++ {
		if scored[i].Candidate.DurationSeconds < scored[fastest].Candidate.DurationSeconds {
			fastest = i
		}
		if scored[i].Score.Value > scored[safest].Score.Value {
			safest = i
		}
	}

	f, sf := scored[fastest], scored[safest]
	var routes []ScoredRoute
	if f.Candidate.DistanceMeters == sf.Candidate.DistanceMeters &&
		f.Candidate.DurationSeconds == sf.Candidate.DurationSeconds {
		f.Role = RoleFastestAndSafest
		routes = []ScoredRoute{f}
	} else {
		f.Role = RoleFastest
		sf.Role = RoleSafest
		routes = []ScoredRoute{f, sf}
	}
	for i := range routes {
		routes[i].Index = i
	}

	return Selection{
		Routes:       routes,
		DefaultIndex: defaultIndex(routes),
	}, nil
}

// defaultIndex prefers safest, then fastest_and_safest, then fastest, then the first route.
func defaultIndex(routes []ScoredRoute) int {
	for _, role := range []Role{RoleSafest, RoleFastestAndSafest, RoleFastest} {
		for i := range routes {
			if routes[i].Role == role {
				return i
			}
		}
	}
	return 0
}
