// Package planner turns two addresses into scored, labeled route alternatives.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/saferoute/saferoute/internal/geocoding"
	"github.com/saferoute/saferoute/internal/history"
	"github.com/saferoute/saferoute/internal/incident"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

const instrumentationName = "github.com/saferoute/saferoute/internal/planner"

// User-facing error kinds. Returned errors wrap one of these together with the cause.
var (
	ErrInvalidRequest      = errors.New("invalid route request")
	ErrOriginNotFound      = errors.New("origin address not found")
	ErrDestinationNotFound = errors.New("destination address not found")
	ErrNoRoutes            = errors.New("no routes between origin and destination")
	ErrUpstream            = errors.New("upstream provider unavailable")
)

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (*geocoding.Place, error)
}

// Router returns route alternatives between two coordinates.
type Router interface {
	GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
}

// IncidentSource returns the current incident snapshot.
type IncidentSource interface {
	Current(ctx context.Context) (*incident.Snapshot, error)
}

// HistoryRecorder stores a history entry for a signed-in user.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry) (*history.Entry, error)
}

// Config holds the planner's collaborators.
type Config struct {
	Geocoder  Geocoder
	Router    Router
	Incidents IncidentSource

	// History is optional; nil disables recording.
	History HistoryRecorder

	// Scorer defaults to safety.NewScorer(safety.DefaultConfig()).
	Scorer *safety.Scorer

	// MaxAlternatives requested from the router (default: 2).
	MaxAlternatives int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Planner orchestrates geocoding, routing and safety scoring.
type Planner struct {
	geocoder        Geocoder
	router          Router
	incidents       IncidentSource
	history         HistoryRecorder
	scorer          *safety.Scorer
	maxAlternatives int
	logger          zerolog.Logger
	now             func() time.Time

	tracer  trace.Tracer
	metrics *metrics
}

// New creates a Planner.
func New(cfg Config) (*Planner, error) {
	if cfg.Geocoder == nil || cfg.Router == nil || cfg.Incidents == nil {
		return nil, errors.New("planner requires a geocoder, a router and an incident source")
	}

	scorer := cfg.Scorer
	if scorer == nil {
		scorer = safety.NewScorer(safety.DefaultConfig())
	}
	maxAlts := cfg.MaxAlternatives
	if maxAlts <= 0 {
		maxAlts = 2
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	m, err := newMetrics(otel.Meter(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("creating planner metrics: %w", err)
	}

	return &Planner{
		geocoder:        cfg.Geocoder,
		router:          cfg.Router,
		incidents:       cfg.Incidents,
		history:         cfg.History,
		scorer:          scorer,
		maxAlternatives: maxAlts,
		logger:          cfg.Logger,
		now:             now,
		tracer:          otel.Tracer(instrumentationName),
		metrics:         m,
	}, nil
}

// Request is a route planning request.
type Request struct {
	Origin      string
	Destination string

	// Mode is walking, cycling or driving. Empty means walking.
	Mode string

	// UserID, when set, attaches the plan to the user's history.
	UserID string
}

// Result is a planned and scored set of routes.
type Result struct {
	Origin      geocoding.Place
	Destination geocoding.Place
	Mode        routing.Mode

	Routes       []PlannedRoute
	DefaultIndex int

	Incidents   IncidentInfo
	GeneratedAt time.Time

	// HistoryID is set when the plan was recorded for the user.
	HistoryID string
}

// PlannedRoute is a selected route with its provider details and safety analysis.
type PlannedRoute struct {
	safety.ScoredRoute

	Route           routing.Route
	SafetySummary   string
	Recommendations []string
}

// IncidentInfo describes the incident data a result was scored against.
type IncidentInfo struct {
	Considered int
	FetchedAt  time.Time
	Provider   string
}

// Plan geocodes both addresses, fetches directions and scores the alternatives.
func (p *Planner) Plan(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "planner.Plan")
	defer func() {
		p.metrics.recordPlan(ctx, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	mode, err := validate(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("route.mode", string(mode)))

	origin, destination, err := p.geocodeBoth(ctx, req.Origin, req.Destination)
	if err != nil {
		return nil, err
	}

	routes, err := p.directions(ctx, origin, destination, mode)
	if err != nil {
		return nil, err
	}

	snapshot := p.snapshot(ctx)

	candidates := make([]safety.Candidate, len(routes))
	for i, r := range routes {
		candidates[i] = toCandidate(r)
	}

	selection, err := p.selectRoutes(ctx, candidates, snapshot)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Origin:       *origin,
		Destination:  *destination,
		Mode:         mode,
		Routes:       make([]PlannedRoute, len(selection.Routes)),
		DefaultIndex: selection.DefaultIndex,
		Incidents:    incidentInfo(snapshot),
		GeneratedAt:  p.now().UTC(),
	}
	for i, sr := range selection.Routes {
		result.Routes[i] = PlannedRoute{
			ScoredRoute:     sr,
			Route:           routes[sr.CandidateIndex],
			SafetySummary:   safety.Summary(sr.Score.Grade, safety.DisplayScore(sr.Score.Value)),
			Recommendations: safety.Recommendations(sr.Score.Grade, sr.RiskSegments),
		}
	}

	if req.UserID != "" && p.history != nil {
		result.HistoryID = p.record(ctx, req, result)
	}

	p.logger.Info().
		Str("mode", string(mode)).
		Int("candidates", len(candidates)).
		Int("routes", len(result.Routes)).
		Int("incidents", result.Incidents.Considered).
		Float64("default_score", selection.Default().Score.Value).
		Msg("route planned")

	return result, nil
}

// ScoreResult is the outcome of scoring caller-supplied candidates.
type ScoreResult struct {
	Selection   safety.Selection
	Incidents   IncidentInfo
	GeneratedAt time.Time
}

// Score selects and labels caller-supplied candidates against the current incidents.
func (p *Planner) Score(ctx context.Context, candidates []safety.Candidate) (*ScoreResult, error) {
	ctx, span := p.tracer.Start(ctx, "planner.Score")
	defer span.End()

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: at least one candidate is required", ErrInvalidRequest)
	}
	for i, c := range candidates {
		if len(c.Polyline) == 0 {
			return nil, fmt.Errorf("%w: candidate %d has no geometry", ErrInvalidRequest, i)
		}
	}

	snapshot := p.snapshot(ctx)
	selection, err := p.selectRoutes(ctx, candidates, snapshot)
	if err != nil {
		return nil, err
	}

	return &ScoreResult{
		Selection:   selection,
		Incidents:   incidentInfo(snapshot),
		GeneratedAt: p.now().UTC(),
	}, nil
}

func validate(req Request) (routing.Mode, error) {
	var problems []string
	if strings.TrimSpace(req.Origin) == "" {
		problems = append(problems, "origin is required")
	}
	if strings.TrimSpace(req.Destination) == "" {
		problems = append(problems, "destination is required")
	}
	mode, err := routing.ParseMode(req.Mode)
	if err != nil {
		problems = append(problems, "mode must be one of walking, cycling, driving")
	}
	if len(problems) > 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return mode, nil
}

func (p *Planner) geocodeBoth(ctx context.Context, originText, destinationText string) (*geocoding.Place, *geocoding.Place, error) {
	ctx, span := p.tracer.Start(ctx, "planner.geocode")
	defer span.End()

	var origin, destination *geocoding.Place
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		place, err := p.geocoder.Geocode(gctx, originText)
		if err != nil {
			return geocodeError(ErrOriginNotFound, err)
		}
		origin = place
		return nil
	})
	g.Go(func() error {
		place, err := p.geocoder.Geocode(gctx, destinationText)
		if err != nil {
			return geocodeError(ErrDestinationNotFound, err)
		}
		destination = place
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	return origin, destination, nil
}

func geocodeError(notFound, err error) error {
	if errors.Is(err, geocoding.ErrNoMatch) || errors.Is(err, geocoding.ErrEmptyQuery) {
		return fmt.Errorf("%w: %w", notFound, err)
	}
	return fmt.Errorf("%w: geocoding: %w", ErrUpstream, err)
}

func (p *Planner) directions(ctx context.Context, origin, destination *geocoding.Place, mode routing.Mode) ([]routing.Route, error) {
	ctx, span := p.tracer.Start(ctx, "planner.directions")
	defer span.End()

	resp, err := p.router.GetDirections(ctx, routing.DirectionsRequest{
		Origin:          routing.Coordinate{Lat: origin.Lat, Lon: origin.Lon},
		Destination:     routing.Coordinate{Lat: destination.Lat, Lon: destination.Lon},
		Profile:         mode.Profile(),
		MaxAlternatives: p.maxAlternatives,
	})
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, routing.ErrNoRouteFound):
			return nil, fmt.Errorf("%w: %w", ErrNoRoutes, err)
		case errors.Is(err, routing.ErrInvalidCoordinates):
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		default:
			return nil, fmt.Errorf("%w: routing: %w", ErrUpstream, err)
		}
	}
	if resp == nil || len(resp.Routes) == 0 {
		return nil, ErrNoRoutes
	}

	span.SetAttributes(attribute.Int("route.candidates", len(resp.Routes)))
	return resp.Routes, nil
}

// snapshot returns the current incidents. A missing or failing index yields an
// empty snapshot so routes still get neutral scores.
func (p *Planner) snapshot(ctx context.Context) *incident.Snapshot {
	snap, err := p.incidents.Current(ctx)
	if err != nil || snap == nil {
		p.logger.Warn().Err(err).Msg("incident data unavailable, scoring with neutral defaults")
		return &incident.Snapshot{}
	}
	return snap
}

func (p *Planner) selectRoutes(ctx context.Context, candidates []safety.Candidate, snapshot *incident.Snapshot) (safety.Selection, error) {
	_, span := p.tracer.Start(ctx, "planner.score",
		trace.WithAttributes(
			attribute.Int("route.candidates", len(candidates)),
			attribute.Int("incident.count", snapshot.Len()),
		),
	)
	defer span.End()

	start := time.Now()
	selection, err := p.scorer.SelectAndLabel(candidates, snapshot.Records)
	p.metrics.recordScoring(ctx, time.Since(start), len(candidates), len(selection.Routes))
	if err != nil {
		return safety.Selection{}, fmt.Errorf("%w: %w", ErrNoRoutes, err)
	}
	return selection, nil
}

func (p *Planner) record(ctx context.Context, req Request, res *Result) string {
	def := res.Routes[res.DefaultIndex]
	entry, err := p.history.Record(ctx, history.Entry{
		UserID:      req.UserID,
		Origin:      history.Location{Text: strings.TrimSpace(req.Origin), Lat: res.Origin.Lat, Lon: res.Origin.Lon},
		Destination: history.Location{Text: strings.TrimSpace(req.Destination), Lat: res.Destination.Lat, Lon: res.Destination.Lon},
		Mode:        string(res.Mode),
		SafetyScore: def.Score.Value,
		Grade:       string(def.Score.Grade),
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("user_id", req.UserID).Msg("failed to record route history")
		return ""
	}
	return entry.ID
}

func toCandidate(r routing.Route) safety.Candidate {
	pts := make([]safety.Point, len(r.Coordinates))
	for i, c := range r.Coordinates {
		pts[i] = safety.Point{Lat: c.Lat, Lon: c.Lon}
	}
	return safety.Candidate{
		Polyline:        pts,
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.DurationSeconds,
		Summary:         r.Summary,
	}
}

func incidentInfo(s *incident.Snapshot) IncidentInfo {
	return IncidentInfo{
		Considered: s.Len(),
		FetchedAt:  s.FetchedAt,
		Provider:   s.Provider,
	}
}
