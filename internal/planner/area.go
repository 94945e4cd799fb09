package planner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/saferoute/saferoute/internal/geocoding"
	"github.com/saferoute/saferoute/internal/safety"
)

// ErrAddressNotFound is returned when an area's address cannot be geocoded.
var ErrAddressNotFound = errors.New("address not found")

// Area radius bounds in miles.
const (
	DefaultAreaRadiusMiles = 0.1
	MaxAreaRadiusMiles     = 1.0

	// milesPerDegree is the length of one degree of latitude.
	milesPerDegree = 69.0

	areaTopCategories = 5
)

// AreaRequest asks for the safety of the neighbourhood around an address.
type AreaRequest struct {
	Address string

	// RadiusMiles defaults to DefaultAreaRadiusMiles.
	RadiusMiles float64
}

// AreaResult is a rated neighbourhood.
type AreaResult struct {
	Place       geocoding.Place
	RadiusMiles float64

	Rating          safety.AreaRating
	SafetySummary   string
	Recommendations []string

	Incidents   IncidentInfo
	GeneratedAt time.Time
}

// RateArea geocodes the address and scores the incidents within the radius.
func (p *Planner) RateArea(ctx context.Context, req AreaRequest) (*AreaResult, error) {
	ctx, span := p.tracer.Start(ctx, "planner.RateArea")
	defer span.End()

	radius := req.RadiusMiles
	switch {
	case strings.TrimSpace(req.Address) == "":
		return nil, fmt.Errorf("%w: address is required", ErrInvalidRequest)
	case math.IsNaN(radius) || radius < 0 || radius > MaxAreaRadiusMiles:
		return nil, fmt.Errorf("%w: radiusMiles must be between 0 and %g", ErrInvalidRequest, MaxAreaRadiusMiles)
	case radius == 0:
		radius = DefaultAreaRadiusMiles
	}

	place, err := p.geocoder.Geocode(ctx, req.Address)
	if err != nil {
		err = geocodeError(ErrAddressNotFound, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	snapshot := p.snapshot(ctx)
	rating := p.scorer.RateArea(
		safety.Point{Lat: place.Lat, Lon: place.Lon},
		radius/milesPerDegree,
		snapshot.Records,
		areaTopCategories,
	)
	span.SetAttributes(
		attribute.Int("area.incidents", rating.Incidents),
		attribute.Float64("area.score", rating.Score.Value),
	)

	score := safety.DisplayScore(rating.Score.Value)
	return &AreaResult{
		Place:           *place,
		RadiusMiles:     radius,
		Rating:          rating,
		SafetySummary:   safety.Summary(rating.Score.Grade, score),
		Recommendations: safety.Recommendations(rating.Score.Grade, nil),
		Incidents:       incidentInfo(snapshot),
		GeneratedAt:     p.now().UTC(),
	}, nil
}
