package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/saferoute/saferoute/internal/routing"
)

// Alternative route tuning sent with every directions request. ORS counts the
// primary route in target_count.
const (
	defaultAlternatives = 2
	shareFactor         = 0.6
	weightFactor        = 1.4
)

// GetDirections asks /v2/directions/{profile} for the primary route plus up to
// MaxAlternatives alternatives.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	switch {
	case !req.Origin.Valid():
		return nil, routeError("INVALID_ORIGIN", "invalid origin coordinates", routing.ErrInvalidCoordinates)
	case !req.Destination.Valid():
		return nil, routeError("INVALID_DESTINATION", "invalid destination coordinates", routing.ErrInvalidCoordinates)
	}

	profile := req.Profile
	if profile == "" {
		profile = routing.ProfileWalk
	}
	alts := req.MaxAlternatives
	if alts <= 0 {
		alts = defaultAlternatives
	}

	payload, err := json.Marshal(orsRequest{
		Coordinates: [][]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
		AlternativeRoutes: &alternativeRoutesOpts{
			TargetCount:  alts + 1,
			ShareFactor:  shareFactor,
			WeightFactor: weightFactor,
		},
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v2/directions/"+string(profile), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	start := time.Now()
	status, body, err := c.do(ctx, httpReq)
	if err != nil {
		c.logger.Warn().Err(err).Str("profile", string(profile)).Msg("ORS directions unreachable")
		return nil, routeError("REQUEST_FAILED", "failed to reach routing provider", routing.ErrProviderUnavailable)
	}
	if status != http.StatusOK {
		return nil, directionsError(status, body)
	}

	var decoded orsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	out := c.toDirectionsResponse(&decoded)
	c.logger.Debug().
		Str("profile", string(profile)).
		Int("route_count", len(out.Routes)).
		Dur("took", time.Since(start)).
		Msg("ORS directions")
	return out, nil
}

func routeError(code, message string, err error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: err}
}

// directionsError maps a non-200 ORS answer onto the routing error kinds.
// ORS reports unroutable points as 400 or 404 with an application code.
func directionsError(status int, body []byte) *routing.Error {
	var apiErr orsErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error.Message

	switch {
	case status == http.StatusTooManyRequests:
		return routeError("RATE_LIMIT", "API rate limit exceeded, please try again later", routing.ErrRateLimitExceeded)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return routeError("FORBIDDEN", "API access denied, check the API key", routing.ErrProviderUnavailable)
	case status == http.StatusNotFound:
		return routeError("NO_ROUTE", "no route found between the given points", routing.ErrNoRouteFound)
	case status == http.StatusBadRequest && unroutable(apiErr.Error.Code):
		return routeError("NO_ROUTE", msg, routing.ErrNoRouteFound)
	case status == http.StatusBadRequest:
		return routeError("BAD_REQUEST", msg, routing.ErrInvalidCoordinates)
	case status >= 500:
		return routeError(fmt.Sprintf("SERVER_%d", status), "routing provider is temporarily unavailable", routing.ErrProviderUnavailable)
	}
	if msg == "" {
		msg = fmt.Sprintf("routing provider returned status %d", status)
	}
	return routeError(fmt.Sprintf("HTTP_%d", status), msg, routing.ErrProviderUnavailable)
}

func unroutable(code int) bool {
	switch code {
	case orsErrorCodeNotFound, orsErrorCodePointNotFound, orsErrorCodeDistanceExceeded:
		return true
	}
	return false
}

// toDirectionsResponse converts the ORS JSON answer. A route whose geometry
// cannot be decoded keeps no coordinates and is dropped by routing.Service.
func (c *Client) toDirectionsResponse(resp *orsResponse) *routing.DirectionsResponse {
	out := &routing.DirectionsResponse{
		Routes:    make([]routing.Route, 0, len(resp.Routes)),
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}

	for i := range resp.Routes {
		src := &resp.Routes[i]
		route := routing.Route{
			GeometryPolyline: src.Geometry,
			DistanceMeters:   src.Summary.Distance,
			DurationSeconds:  src.Summary.Duration,
		}
		if err := route.DecodeGeometry(); err != nil {
			c.logger.Warn().Err(err).Int("route", i).Msg("ORS returned undecodable geometry")
			route.Coordinates = nil
		}
		if b := src.BBox; len(b) >= 4 {
			route.BoundingBox = &routing.BoundingBox{MinLon: b[0], MinLat: b[1], MaxLon: b[2], MaxLat: b[3]}
		}
		for _, seg := range src.Segments {
			for _, step := range seg.Steps {
				route.Instructions = append(route.Instructions, routing.Instruction{
					Text:           step.Instruction,
					Street:         step.Name,
					DistanceMeters: step.Distance,
					DurationSecs:   step.Duration,
					Type:           step.Type,
				})
			}
		}
		route.Summary = summarizeRoute(route.Instructions)
		out.Routes = append(out.Routes, route)
	}
	return out
}

// summarizeRoute names the route after the street it spends the most distance
// on, e.g. "via Market Street". On a tie the street that got there first wins.
func summarizeRoute(instructions []routing.Instruction) string {
	lengths := make(map[string]float64)
	var best string
	for _, inst := range instructions {
		if inst.Street == "" || inst.Street == "-" {
			continue
		}
		lengths[inst.Street] += inst.DistanceMeters
		if best == "" || lengths[inst.Street] > lengths[best] {
			best = inst.Street
		}
	}
	if best == "" {
		return ""
	}
	return "via " + best
}
