package models

// RateAreaRequest is the request body for POST /v1/areas:rate.
type RateAreaRequest struct {
	Address string `json:"address"`

	// RadiusMiles defaults to 0.1 and may not exceed 1.
	RadiusMiles float64 `json:"radiusMiles,omitempty"`
}

// RateAreaResponse rates the neighbourhood around an address.
type RateAreaResponse struct {
	Place       Place   `json:"place"`
	RadiusMiles float64 `json:"radiusMiles"`

	SafetyScore     float64  `json:"safetyScore"`
	Grade           string   `json:"grade"`
	SafetySummary   string   `json:"safetySummary"`
	Recommendations []string `json:"recommendations"`

	// IncidentsNearby counts incidents inside the radius; Density is their
	// category-weighted sum at the route-scoring radius.
	IncidentsNearby int             `json:"incidentsNearby"`
	Density         float64         `json:"density"`
	TopCategories   []CategoryCount `json:"topCategories"`

	IncidentsConsidered int        `json:"incidentsConsidered"`
	IncidentsAsOf       *Timestamp `json:"incidentsAsOf,omitempty"`
	GeneratedAt         Timestamp  `json:"generatedAt"`
}
