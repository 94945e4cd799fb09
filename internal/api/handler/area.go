package handler

import (
	"math"
	"net/http"
	"strings"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/safety"
)

// RateArea handles POST /v1/areas:rate.
func (h *RouteHandler) RateArea(w http.ResponseWriter, r *http.Request) {
	var input models.RateAreaRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	var fieldErrs []models.FieldError
	if strings.TrimSpace(input.Address) == "" {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "address", Message: "address is required", Code: "REQUIRED"})
	}
	if input.RadiusMiles < 0 || input.RadiusMiles > planner.MaxAreaRadiusMiles {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "radiusMiles", Message: "must be between 0 and 1", Code: "OUT_OF_RANGE"})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrs)
		return
	}

	result, err := h.planner.RateArea(r.Context(), planner.AreaRequest{
		Address:     input.Address,
		RadiusMiles: input.RadiusMiles,
	})
	if err != nil {
		h.writePlannerError(w, r, err)
		return
	}

	rating := result.Rating
	resp := models.RateAreaResponse{
		Place:               toPlace(result.Place),
		RadiusMiles:         result.RadiusMiles,
		SafetyScore:         safety.DisplayScore(rating.Score.Value),
		Grade:               string(rating.Score.Grade),
		SafetySummary:       result.SafetySummary,
		Recommendations:     result.Recommendations,
		IncidentsNearby:     rating.Incidents,
		Density:             math.Round(rating.Score.AvgDensity*10) / 10,
		TopCategories:       make([]models.CategoryCount, 0, len(rating.TopLabels)),
		IncidentsConsidered: result.Incidents.Considered,
		IncidentsAsOf:       models.TimestampPtr(result.Incidents.FetchedAt),
		GeneratedAt:         models.Timestamp(result.GeneratedAt),
	}
	for _, lc := range rating.TopLabels {
		resp.TopCategories = append(resp.TopCategories, models.CategoryCount{Category: lc.Label, Count: lc.Count})
	}

	response.JSON(w, r, http.StatusOK, resp)
}
