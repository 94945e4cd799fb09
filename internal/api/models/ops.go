package models

// Health is the liveness response for GET /v1/ops/health.
type Health struct {
	Status    HealthStatus `json:"status"`
	Time      Timestamp    `json:"time"`
	Version   string       `json:"version,omitempty"`
	BuildTime string       `json:"buildTime,omitempty"`
}

// Readiness is the response for GET /v1/ops/ready. It is only sent once an
// incident snapshot is loaded; Status is DEGRADED while that snapshot is stale.
type Readiness struct {
	Status    HealthStatus  `json:"status"`
	Time      Timestamp     `json:"time"`
	Incidents IncidentIndex `json:"incidents"`
}

// IncidentIndex summarizes the snapshot used for scoring.
type IncidentIndex struct {
	Records   int        `json:"records"`
	Provider  string     `json:"provider,omitempty"`
	FetchedAt *Timestamp `json:"fetchedAt,omitempty"`
	ExpiresAt *Timestamp `json:"expiresAt,omitempty"`
	Stale     bool       `json:"stale"`
}

// SystemStatus is the response for GET /v1/ops/status. Status is the worst
// state across subsystems and providers.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Version    string            `json:"version,omitempty"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	Caches     []CacheStatus     `json:"caches"`
}

// CacheStatus is the size of an in-process response cache.
type CacheStatus struct {
	Name         string `json:"name"`
	Entries      int    `json:"entries"`
	StaleEntries int    `json:"staleEntries"`
}

// SubsystemStatus is the state of an internal component.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus is the circuit breaker view of an outbound provider
// (routing, geocoding, incident feed).
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"failures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
