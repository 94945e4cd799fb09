package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/incident"
)

// DefaultTopCategories is the number of categories returned by the stats endpoint.
const DefaultTopCategories = 10

// IncidentIndex exposes the incident snapshot held by the API.
type IncidentIndex interface {
	Current(ctx context.Context) (*incident.Snapshot, error)
	Refresh(ctx context.Context) (*incident.Snapshot, error)
	Status() incident.Status
}

// IncidentHandler handles incident endpoints.
type IncidentHandler struct {
	index  IncidentIndex
	logger zerolog.Logger
}

// NewIncidentHandler creates a new IncidentHandler.
func NewIncidentHandler(index IncidentIndex, logger zerolog.Logger) *IncidentHandler {
	return &IncidentHandler{index: index, logger: logger}
}

// Stats handles GET /v1/incidents/stats?top=N.
func (h *IncidentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	top := DefaultTopCategories
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			response.BadRequest(w, r, "top must be an integer between 0 and 100", []models.FieldError{
				{Field: "top", Message: "must be an integer between 0 and 100", Code: "OUT_OF_RANGE"},
			})
			return
		}
		top = n
	}

	snapshot, err := h.index.Current(r.Context())
	if err != nil || snapshot == nil {
		h.logger.Warn().Err(err).Msg("incident stats requested without a snapshot")
		response.ServiceUnavailable(w, r, "incident data is not available yet")
		return
	}

	st := incident.ComputeStats(snapshot, top)
	resp := models.IncidentStats{
		Total:      st.Total,
		Categories: make([]models.CategoryCount, 0, len(st.Categories)),
		Oldest:     models.TimestampPtr(st.Oldest),
		Newest:     models.TimestampPtr(st.Newest),
		FetchedAt:  models.TimestampPtr(st.FetchedAt),
		Provider:   st.Provider,
		Stale:      h.index.Status().IsStale,
	}
	for _, c := range st.Categories {
		resp.Categories = append(resp.Categories, models.CategoryCount{Category: c.Label, Count: c.Count})
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// Refresh handles POST /v1/incidents:refresh.
func (h *IncidentHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.index.Refresh(r.Context())
	if err != nil || snapshot == nil {
		h.logger.Error().Err(err).Str("user_id", middleware.GetUserID(r.Context())).Msg("incident refresh failed")
		response.BadGateway(w, r, "incident feed is unavailable")
		return
	}

	h.logger.Info().
		Str("user_id", middleware.GetUserID(r.Context())).
		Int("records", snapshot.Len()).
		Msg("incident index refreshed on request")

	response.JSON(w, r, http.StatusOK, models.IncidentRefresh{
		Records:   snapshot.Len(),
		FetchedAt: models.Timestamp(snapshot.FetchedAt),
		Provider:  snapshot.Provider,
	})
}
