package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/geocoding"
	"github.com/saferoute/saferoute/internal/planner"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/pkg/polyline"
)

// MaxScoreCandidates bounds the number of candidates accepted by routes:score.
const MaxScoreCandidates = 10

// RoutePlanner plans and scores routes and rates areas.
type RoutePlanner interface {
	Plan(ctx context.Context, req planner.Request) (*planner.Result, error)
	Score(ctx context.Context, candidates []safety.Candidate) (*planner.ScoreResult, error)
	RateArea(ctx context.Context, req planner.AreaRequest) (*planner.AreaResult, error)
}

// RouteHandler handles route planning and scoring endpoints.
type RouteHandler struct {
	planner RoutePlanner
	logger  zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(p RoutePlanner, logger zerolog.Logger) *RouteHandler {
	return &RouteHandler{planner: p, logger: logger}
}

// PlanRoute handles POST /v1/routes:plan.
func (h *RouteHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	var input models.PlanRouteRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	if fieldErrs := validatePlanRequest(input); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrs)
		return
	}

	result, err := h.planner.Plan(r.Context(), planner.Request{
		Origin:      input.Origin,
		Destination: input.Destination,
		Mode:        input.Mode,
		UserID:      middleware.GetUserID(r.Context()),
	})
	if err != nil {
		h.writePlannerError(w, r, err)
		return
	}

	resp := models.PlanRouteResponse{
		Origin:              toPlace(result.Origin),
		Destination:         toPlace(result.Destination),
		Mode:                string(result.Mode),
		Routes:              make([]models.RouteOption, 0, len(result.Routes)),
		DefaultIndex:        result.DefaultIndex,
		IncidentsConsidered: result.Incidents.Considered,
		IncidentsAsOf:       models.TimestampPtr(result.Incidents.FetchedAt),
		GeneratedAt:         models.Timestamp(result.GeneratedAt),
		HistoryID:           result.HistoryID,
	}
	for i := range result.Routes {
		resp.Routes = append(resp.Routes, toPlannedOption(&result.Routes[i]))
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// ScoreRoutes handles POST /v1/routes:score.
func (h *RouteHandler) ScoreRoutes(w http.ResponseWriter, r *http.Request) {
	var input models.ScoreRoutesRequest
	if err := response.DecodeJSON(w, r, &input); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	candidates, fieldErrs := toCandidates(input.Candidates)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrs)
		return
	}

	result, err := h.planner.Score(r.Context(), candidates)
	if err != nil {
		h.writePlannerError(w, r, err)
		return
	}

	resp := models.ScoreRoutesResponse{
		Routes:              make([]models.ScoredCandidate, 0, len(result.Selection.Routes)),
		DefaultIndex:        result.Selection.DefaultIndex,
		IncidentsConsidered: result.Incidents.Considered,
		IncidentsAsOf:       models.TimestampPtr(result.Incidents.FetchedAt),
		GeneratedAt:         models.Timestamp(result.GeneratedAt),
	}
	for _, sr := range result.Selection.Routes {
		resp.Routes = append(resp.Routes, models.ScoredCandidate{
			RouteOption:    toScoredOption(sr, polyline.Encode5(toPolylineCoords(sr.Candidate.Polyline))),
			CandidateIndex: sr.CandidateIndex,
		})
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// upstreamRetryAfter is sent with 502s caused by a rate limited or
// unavailable routing provider.
const upstreamRetryAfter = "30"

func (h *RouteHandler) writePlannerError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, planner.ErrInvalidRequest):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, planner.ErrOriginNotFound):
		response.AddressNotFound(w, r, "origin address not found", "origin")
	case errors.Is(err, planner.ErrDestinationNotFound):
		response.AddressNotFound(w, r, "destination address not found", "destination")
	case errors.Is(err, planner.ErrAddressNotFound):
		response.AddressNotFound(w, r, "address not found", "address")
	case errors.Is(err, planner.ErrNoRoutes):
		response.NoRoute(w, r, "no routes between origin and destination")
	case errors.Is(err, planner.ErrUpstream):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream provider failed")
		var rerr *routing.Error
		if errors.As(err, &rerr) && rerr.IsRetryable() {
			w.Header().Set("Retry-After", upstreamRetryAfter)
		}
		response.BadGateway(w, r, "a routing or geocoding provider is unavailable, try again later")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "request timed out")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("route request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func validatePlanRequest(in models.PlanRouteRequest) []models.FieldError {
	var errs []models.FieldError
	if strings.TrimSpace(in.Origin) == "" {
		errs = append(errs, models.FieldError{Field: "origin", Message: "origin is required", Code: "REQUIRED"})
	}
	if strings.TrimSpace(in.Destination) == "" {
		errs = append(errs, models.FieldError{Field: "destination", Message: "destination is required", Code: "REQUIRED"})
	}
	if _, err := routing.ParseMode(in.Mode); err != nil {
		errs = append(errs, models.FieldError{Field: "mode", Message: "mode must be one of walking, cycling, driving", Code: "INVALID"})
	}
	return errs
}

// toCandidates converts request candidates, collecting one field error per bad entry.
func toCandidates(in []models.ScoreCandidate) ([]safety.Candidate, []models.FieldError) {
	if len(in) == 0 {
		return nil, []models.FieldError{{Field: "candidates", Message: "at least one candidate is required", Code: "REQUIRED"}}
	}
	if len(in) > MaxScoreCandidates {
		return nil, []models.FieldError{{
			Field:   "candidates",
			Message: fmt.Sprintf("at most %d candidates are allowed", MaxScoreCandidates),
			Code:    "TOO_MANY",
		}}
	}

	var errs []models.FieldError
	out := make([]safety.Candidate, 0, len(in))
	for i, c := range in {
		field := fmt.Sprintf("candidates[%d]", i)

		points, msg := candidatePoints(c)
		if msg != "" {
			errs = append(errs, models.FieldError{Field: field, Message: msg, Code: "INVALID"})
			continue
		}
		if c.DurationSeconds < 0 || c.DistanceMeters < 0 || !finite(c.DurationSeconds) || !finite(c.DistanceMeters) {
			errs = append(errs, models.FieldError{Field: field, Message: "duration and distance must be non-negative", Code: "INVALID"})
			continue
		}

		out = append(out, safety.Candidate{
			Polyline:        points,
			DistanceMeters:  c.DistanceMeters,
			DurationSeconds: c.DurationSeconds,
			Summary:         c.Summary,
		})
	}
	return out, errs
}

func candidatePoints(c models.ScoreCandidate) ([]safety.Point, string) {
	switch {
	case c.Polyline != "" && len(c.Coordinates) > 0:
		return nil, "set either polyline or coordinates, not both"
	case c.Polyline != "":
		coords, err := polyline.Decode5(c.Polyline)
		if err != nil {
			return nil, "polyline is not a valid precision-5 encoding"
		}
		if len(coords) == 0 {
			return nil, "polyline has no points"
		}
		points := make([]safety.Point, len(coords))
		for i, p := range coords {
			points[i] = safety.Point{Lat: p.Lat, Lon: p.Lon}
		}
		return points, ""
	case len(c.Coordinates) > 0:
		points := make([]safety.Point, len(c.Coordinates))
		for i, p := range c.Coordinates {
			lat, lon := p[0], p[1]
			if lat < -90 || lat > 90 || lon < -180 || lon > 180 || !finite(lat) || !finite(lon) {
				return nil, fmt.Sprintf("coordinates[%d] is out of range", i)
			}
			points[i] = safety.Point{Lat: lat, Lon: lon}
		}
		return points, ""
	default:
		return nil, "polyline or coordinates is required"
	}
}

func toPlannedOption(pr *planner.PlannedRoute) models.RouteOption {
	geometry := pr.Route.GeometryPolyline
	if geometry == "" {
		geometry = polyline.Encode5(toPolylineCoords(pr.Candidate.Polyline))
	}
	opt := toScoredOption(pr.ScoredRoute, geometry)
	opt.SafetySummary = pr.SafetySummary
	opt.Recommendations = pr.Recommendations
	if bb := pr.Route.BoundingBox; bb != nil {
		opt.BoundingBox = &models.GeoBox{MinLat: bb.MinLat, MinLon: bb.MinLon, MaxLat: bb.MaxLat, MaxLon: bb.MaxLon}
	}
	return opt
}

func toScoredOption(sr safety.ScoredRoute, geometry string) models.RouteOption {
	score := safety.DisplayScore(sr.Score.Value)
	opt := models.RouteOption{
		Index:            sr.Index,
		Role:             toRouteRole(sr.Role),
		SafetyScore:      score,
		Grade:            string(sr.Score.Grade),
		DurationSeconds:  int(math.Round(sr.Candidate.DurationSeconds)),
		DistanceMeters:   int(math.Round(sr.Candidate.DistanceMeters)),
		Summary:          sr.Candidate.Summary,
		GeometryPolyline: geometry,
		SafetySummary:    safety.Summary(sr.Score.Grade, score),
		Recommendations:  safety.Recommendations(sr.Score.Grade, sr.RiskSegments),
		RiskSegments:     make([]models.RiskSegment, 0, len(sr.RiskSegments)),
	}
	for _, seg := range sr.RiskSegments {
		opt.RiskSegments = append(opt.RiskSegments, models.RiskSegment{
			Point:       models.Point{Lat: seg.Position.Lat, Lon: seg.Position.Lon},
			Level:       string(seg.Level),
			Density:     math.Round(seg.Density*10) / 10,
			Description: seg.Description,
			Category:    seg.Label,
			Count:       seg.Count,
		})
	}
	return opt
}

func toRouteRole(r safety.Role) models.RouteRole {
	switch r {
	case safety.RoleFastest:
		return models.RouteRoleFastest
	case safety.RoleSafest:
		return models.RouteRoleSafest
	default:
		return models.RouteRoleFastestAndSafest
	}
}

func toPlace(p geocoding.Place) models.Place {
	return models.Place{Label: p.Label, Lat: p.Lat, Lon: p.Lon}
}

func toPolylineCoords(points []safety.Point) []polyline.Coordinate {
	coords := make([]polyline.Coordinate, len(points))
	for i, p := range points {
		coords[i] = polyline.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}
	return coords
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
