package geocoding_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/geocoding"
)

type mockProvider struct {
	places    map[string]*geocoding.Place
	err       error
	callCount atomic.Int32
}

func (m *mockProvider) Geocode(_ context.Context, text string) (*geocoding.Place, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.places[text]
	if !ok {
		return nil, geocoding.ErrNoMatch
	}
	cp := *p
	return &cp, nil
}

func (m *mockProvider) Name() string { return "mock" }

func newService(p geocoding.Provider) *geocoding.Service {
	return geocoding.NewService(geocoding.ServiceConfig{Provider: p, Logger: zerolog.Nop()})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "1 market st, san francisco", geocoding.Normalize("  1   Market St,\tSan Francisco "))
	assert.Equal(t, "", geocoding.Normalize("   "))
}

func TestService_Geocode(t *testing.T) {
	provider := &mockProvider{places: map[string]*geocoding.Place{
		"1 Market St": {Lat: 37.7936, Lon: -122.3950, Label: "1 Market St, San Francisco, CA"},
	}}
	svc := newService(provider)

	place, err := svc.Geocode(context.Background(), " 1 Market St ")
	require.NoError(t, err)
	assert.Equal(t, "1 Market St, San Francisco, CA", place.Label)
	assert.InDelta(t, 37.7936, place.Lat, 1e-9)
}

func TestService_Geocode_CachesByNormalizedText(t *testing.T) {
	provider := &mockProvider{places: map[string]*geocoding.Place{
		"1 Market St": {Lat: 37.7936, Lon: -122.3950},
	}}
	svc := newService(provider)

	_, err := svc.Geocode(context.Background(), "1 Market St")
	require.NoError(t, err)
	_, err = svc.Geocode(context.Background(), "1  MARKET st")
	require.NoError(t, err)

	assert.Equal(t, int32(1), provider.callCount.Load())
	assert.Equal(t, 1, svc.CacheSize())
}

func TestService_Geocode_ReturnsCopies(t *testing.T) {
	provider := &mockProvider{places: map[string]*geocoding.Place{
		"a": {Lat: 1, Lon: 2},
	}}
	svc := newService(provider)

	first, err := svc.Geocode(context.Background(), "a")
	require.NoError(t, err)
	first.Lat = 99

	second, err := svc.Geocode(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, second.Lat)
}

func TestService_Geocode_EmptyQuery(t *testing.T) {
	provider := &mockProvider{}
	svc := newService(provider)

	_, err := svc.Geocode(context.Background(), "  \t ")
	assert.ErrorIs(t, err, geocoding.ErrEmptyQuery)
	assert.Zero(t, provider.callCount.Load())
}

func TestService_Geocode_NoMatchNotCached(t *testing.T) {
	provider := &mockProvider{places: map[string]*geocoding.Place{}}
	svc := newService(provider)

	for i := 0; i < 2; i++ {
		_, err := svc.Geocode(context.Background(), "nowhere")
		assert.ErrorIs(t, err, geocoding.ErrNoMatch)
	}
	assert.Equal(t, int32(2), provider.callCount.Load())
}

func TestService_Geocode_ProviderError(t *testing.T) {
	provider := &mockProvider{err: errors.New("boom")}
	svc := newService(provider)

	_, err := svc.Geocode(context.Background(), "1 Market St")
	assert.EqualError(t, err, "boom")
}

func TestService_Geocode_BoundedCache(t *testing.T) {
	provider := &mockProvider{places: map[string]*geocoding.Place{
		"a": {}, "b": {}, "c": {},
	}}
	svc := geocoding.NewService(geocoding.ServiceConfig{Provider: provider, Logger: zerolog.Nop(), MaxEntries: 2})

	for _, q := range []string{"a", "b", "c"} {
		_, err := svc.Geocode(context.Background(), q)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, svc.CacheSize(), 2)
}
