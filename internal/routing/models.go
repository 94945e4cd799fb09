// Package routing provides route alternatives between two points for walking,
// cycling and driving.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saferoute/saferoute/pkg/polyline"
)

var (
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	ErrNoRouteFound        = errors.New("no route found between the given points")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrUnsupportedMode     = errors.New("unsupported transport mode")
)

// Provider computes routes. Implementations return the primary route first,
// followed by any alternatives.
type Provider interface {
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	Name() string
	SupportedProfiles() []RouteProfile
}

// Mode is the user-facing transport mode.
type Mode string

const (
	ModeWalking Mode = "walking"
	ModeCycling Mode = "cycling"
	ModeDriving Mode = "driving"
)

// Modes lists every supported transport mode.
var Modes = []Mode{ModeWalking, ModeCycling, ModeDriving}

// ParseMode parses a transport mode, case-insensitively. An empty string means walking.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeWalking:
		return ModeWalking, nil
	case ModeCycling:
		return ModeCycling, nil
	case ModeDriving:
		return ModeDriving, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// Profile returns the routing profile for the mode.
func (m Mode) Profile() RouteProfile {
	switch m {
	case ModeCycling:
		return ProfileBike
	case ModeDriving:
		return ProfileCar
	default:
		return ProfileWalk
	}
}

// RouteProfile is the provider-side routing profile.
type RouteProfile string

const (
	ProfileWalk RouteProfile = "foot-walking"
	ProfileBike RouteProfile = "cycling-regular"
	ProfileCar  RouteProfile = "driving-car"
)

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinate is within latitude/longitude range.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type DirectionsRequest struct {
	Origin      Coordinate
	Destination Coordinate
	Profile     RouteProfile

	// MaxAlternatives excludes the primary route. Zero uses the provider default.
	MaxAlternatives int
}

// DirectionsResponse holds the routes from one provider call.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route is one candidate path. Coordinates run from origin to destination;
// GeometryPolyline is the same path encoded at precision 5.
type Route struct {
	Coordinates      []Coordinate
	GeometryPolyline string
	DistanceMeters   float64
	DurationSeconds  float64
	Summary          string
	BoundingBox      *BoundingBox
	Instructions     []Instruction
}

// DecodeGeometry fills Coordinates from GeometryPolyline.
func (r *Route) DecodeGeometry() error {
	coords, err := polyline.Decode5(r.GeometryPolyline)
	if err != nil {
		return fmt.Errorf("decode route geometry: %w", err)
	}
	r.Coordinates = make([]Coordinate, len(coords))
	for i, c := range coords {
		r.Coordinates[i] = Coordinate{Lat: c.Lat, Lon: c.Lon}
	}
	return nil
}

// BoundingBox is the extent of a route as reported by the provider.
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Instruction is one turn-by-turn step. Type is the provider's maneuver code.
type Instruction struct {
	Text           string
	Street         string
	DistanceMeters float64
	DurationSecs   float64
	Type           int
}

// Error is a provider failure. Err is one of the sentinel errors above, so
// callers can branch with errors.Is.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the same request may succeed later.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
