package models

// IncidentStats is the response for GET /v1/incidents/stats.
type IncidentStats struct {
	Total      int             `json:"total"`
	Categories []CategoryCount `json:"categories"`
	Oldest     *Timestamp      `json:"oldest,omitempty"`
	Newest     *Timestamp      `json:"newest,omitempty"`
	FetchedAt  *Timestamp      `json:"fetchedAt,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Stale      bool            `json:"stale"`
}

// CategoryCount is the number of incidents with one label.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// IncidentRefresh is the response for POST /v1/incidents:refresh.
type IncidentRefresh struct {
	Records   int       `json:"records"`
	FetchedAt Timestamp `json:"fetchedAt"`
	Provider  string    `json:"provider"`
}
