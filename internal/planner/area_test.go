package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/geocoding"
	"github.com/saferoute/saferoute/internal/incident"
)

func TestRateArea(t *testing.T) {
	f := newFixture(t)
	f.geocoder.places["Mission and 16th"] = &geocoding.Place{Lat: 37.77, Lon: -122.42, Label: "16th St & Mission St"}

	res, err := f.planner.RateArea(context.Background(), AreaRequest{Address: "Mission and 16th"})
	require.NoError(t, err)

	assert.Equal(t, "16th St & Mission St", res.Place.Label)
	assert.Equal(t, DefaultAreaRadiusMiles, res.RadiusMiles)
	assert.InDelta(t, DefaultAreaRadiusMiles/milesPerDegree, res.Rating.Radius, 1e-12)
	assert.Equal(t, 30, res.Rating.Incidents)
	assert.Equal(t, 30, res.Incidents.Considered)
	assert.Equal(t, fixedNow, res.GeneratedAt)
	assert.NotEmpty(t, res.SafetySummary)
	assert.NotEmpty(t, res.Recommendations)
}

func TestRateArea_Validation(t *testing.T) {
	f := newFixture(t)

	for name, req := range map[string]AreaRequest{
		"blank address":  {Address: "  "},
		"negative":       {Address: "Ferry Building", RadiusMiles: -0.5},
		"beyond maximum": {Address: "Ferry Building", RadiusMiles: MaxAreaRadiusMiles + 0.1},
	} {
		_, err := f.planner.RateArea(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, name)
	}
	assert.Empty(t, f.geocoder.calls, "invalid requests never reach the geocoder")
}

func TestRateArea_GeocodingErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.planner.RateArea(context.Background(), AreaRequest{Address: "Atlantis"})
	assert.ErrorIs(t, err, ErrAddressNotFound)

	f.geocoder.err = geocoding.ErrProviderUnavailable
	_, err = f.planner.RateArea(context.Background(), AreaRequest{Address: "Ferry Building"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestRateArea_NoIncidentDataIsNeutral(t *testing.T) {
	f := newFixture(t)
	f.incidents.snapshot = nil
	f.incidents.err = incident.ErrNoSnapshot

	res, err := f.planner.RateArea(context.Background(), AreaRequest{Address: "Ferry Building", RadiusMiles: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 85.0, res.Rating.Score.Value)
	assert.Zero(t, res.Incidents.Considered)
}
