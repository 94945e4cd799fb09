// Package handler provides HTTP handlers for the SafeRoute API.
package handler

import (
	"net/http"
	"time"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/incident"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// IncidentStatus reports the state of the incident index.
type IncidentStatus interface {
	Status() incident.Status
}

// ProviderHealth reports outbound provider health.
type ProviderHealth interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// CacheReporter samples an in-process cache for the status endpoint.
type CacheReporter func() models.CacheStatus

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	incidents IncidentStatus
	providers ProviderHealth
	caches    []CacheReporter
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler. Either dependency may be nil.
func NewOpsHandler(version, buildTime string, incidents IncidentStatus, providers ProviderHealth) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		incidents: incidents,
		providers: providers,
		now:       time.Now,
	}
}

// WithCaches adds caches to the status report.
func (h *OpsHandler) WithCaches(caches ...CacheReporter) *OpsHandler {
	h.caches = append(h.caches, caches...)
	return h
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.now()),
		Version:   h.version,
		BuildTime: h.buildTime,
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once an
// incident snapshot has been loaded.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.incidents == nil {
		response.ServiceUnavailable(w, r, "incident index not loaded")
		return
	}
	st := h.incidents.Status()
	if !st.HasData {
		response.ServiceUnavailable(w, r, "incident index not loaded")
		return
	}

	ready := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Incidents: models.IncidentIndex{
			Records:   st.Records,
			Provider:  st.Provider,
			FetchedAt: models.TimestampPtr(st.FetchedAt),
			ExpiresAt: models.TimestampPtr(st.ExpiresAt),
			Stale:     st.IsStale,
		},
	}
	if st.IsStale {
		ready.Status = models.HealthStatusDegraded
	}
	response.JSON(w, r, http.StatusOK, ready)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.now()),
		Version:    h.version,
		Subsystems: []models.SubsystemStatus{h.incidentSubsystem()},
		Providers:  []models.ProviderStatus{},
		Caches:     make([]models.CacheStatus, 0, len(h.caches)),
	}
	for _, c := range h.caches {
		status.Caches = append(status.Caches, c())
	}

	if h.providers != nil {
		for _, ph := range h.providers.GetAllHealth() {
			status.Providers = append(status.Providers, providerStatus(ph))
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worse(status.Status, s.Status)
	}
	for _, p := range status.Providers {
		status.Status = worse(status.Status, p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) incidentSubsystem() models.SubsystemStatus {
	sub := models.SubsystemStatus{Name: "incident-index", Status: models.HealthStatusOK}
	if h.incidents == nil {
		sub.Status = models.HealthStatusFail
		return sub
	}

	st := h.incidents.Status()
	switch {
	case !st.HasData:
		sub.Status = models.HealthStatusFail
		detail := "no snapshot loaded"
		if st.LastError != "" {
			detail += ": " + st.LastError
		}
		sub.Detail = &detail
	case st.IsStale:
		sub.Status = models.HealthStatusDegraded
		detail := "snapshot is stale"
		sub.Detail = &detail
	}
	return sub
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     ph.Name,
		CircuitState: ph.CircuitState.String(),
		Requests:     ph.Counts.Requests,
		Failures:     ph.Counts.TotalFailures,
	}
	switch ph.Status() {
	case resilience.StatusUnhealthy:
		ps.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		ps.Status = models.HealthStatusDegraded
	default:
		ps.Status = models.HealthStatusOK
	}
	if ph.LastSuccessAt != nil {
		ps.LastSuccessAt = models.TimestampPtr(*ph.LastSuccessAt)
	}
	if ph.LastFailureAt != nil {
		ps.LastFailureAt = models.TimestampPtr(*ph.LastFailureAt)
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}

func worse(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
