package models

// PlanRouteRequest is the request body for POST /v1/routes:plan.
type PlanRouteRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`

	// Mode is walking (default), cycling or driving.
	Mode string `json:"mode,omitempty"`
}

// PlanRouteResponse is the response for route planning.
type PlanRouteResponse struct {
	Origin      Place         `json:"origin"`
	Destination Place         `json:"destination"`
	Mode        string        `json:"mode"`
	Routes      []RouteOption `json:"routes"`

	// DefaultIndex is the route to show first, the safest one.
	DefaultIndex        int        `json:"defaultIndex"`
	IncidentsConsidered int        `json:"incidentsConsidered"`
	IncidentsAsOf       *Timestamp `json:"incidentsAsOf,omitempty"`
	GeneratedAt         Timestamp  `json:"generatedAt"`

	// HistoryID is set when the plan was saved to the caller's history.
	HistoryID string `json:"historyId,omitempty"`
}

// Place is a geocoded address.
type Place struct {
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

// RouteRole labels a route option.
type RouteRole string

const (
	RouteRoleFastest          RouteRole = "FASTEST"
	RouteRoleSafest           RouteRole = "SAFEST"
	RouteRoleFastestAndSafest RouteRole = "FASTEST_AND_SAFEST"
)

// RouteOption is one labelled route.
type RouteOption struct {
	Index           int       `json:"index"`
	Role            RouteRole `json:"role"`
	SafetyScore     float64   `json:"safetyScore"`
	Grade           string    `json:"grade"`
	DurationSeconds int       `json:"durationSeconds"`
	DistanceMeters  int       `json:"distanceMeters"`
	Summary         string    `json:"summary,omitempty"`

	// GeometryPolyline is the encoded path (precision 5).
	GeometryPolyline string   `json:"geometryPolyline"`
	BoundingBox      *GeoBox  `json:"boundingBox,omitempty"`
	SafetySummary    string   `json:"safetySummary"`
	Recommendations  []string `json:"recommendations"`

	RiskSegments []RiskSegment `json:"riskSegments"`
}

// RiskSegment is a point along a route with elevated incident density.
type RiskSegment struct {
	Point       Point   `json:"point"`
	Level       string  `json:"level"`
	Density     float64 `json:"density"`
	Description string  `json:"description"`

	// Category is the most frequent incident category nearby, if any.
	Category string `json:"category,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// ScoreRoutesRequest is the request body for POST /v1/routes:score.
type ScoreRoutesRequest struct {
	Candidates []ScoreCandidate `json:"candidates"`
}

// ScoreCandidate is a caller-supplied route. Exactly one of Polyline and
// Coordinates must be set; Coordinates are [lat, lon] pairs.
type ScoreCandidate struct {
	Polyline        string       `json:"polyline,omitempty"`
	Coordinates     [][2]float64 `json:"coordinates,omitempty"`
	DurationSeconds float64      `json:"durationSeconds"`
	DistanceMeters  float64      `json:"distanceMeters"`
	Summary         string       `json:"summary,omitempty"`
}

// ScoreRoutesResponse is the response for route scoring.
type ScoreRoutesResponse struct {
	Routes              []ScoredCandidate `json:"routes"`
	DefaultIndex        int               `json:"defaultIndex"`
	IncidentsConsidered int               `json:"incidentsConsidered"`
	IncidentsAsOf       *Timestamp        `json:"incidentsAsOf,omitempty"`
	GeneratedAt         Timestamp         `json:"generatedAt"`
}

// ScoredCandidate is a RouteOption that also points back to its input candidate.
type ScoredCandidate struct {
	RouteOption
	CandidateIndex int `json:"candidateIndex"`
}
