package resilience_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/provider/resilience"
)

func registered(registry *resilience.Registry, names ...string) {
	for _, name := range names {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}
}

func TestRegistry_NewClientRegisters(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("openrouteservice")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	assert.Equal(t, "openrouteservice", client.Name())

	health := registry.GetHealth("openrouteservice")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.Equal(t, resilience.StatusHealthy, health.Status())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	assert.Nil(t, registry.GetHealth("nominatim"))
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	registered(registry, "socrata")

	registry.RecordFailure("socrata", errors.New("dial tcp: connection refused"))
	registry.RecordSuccess("socrata")

	h := registry.GetHealth("socrata")
	require.NotNil(t, h.LastFailureAt)
	require.NotNil(t, h.LastSuccessAt)
	assert.WithinDuration(t, time.Now(), *h.LastSuccessAt, time.Second)
	assert.False(t, h.LastSuccessAt.Before(*h.LastFailureAt))
	assert.Equal(t, "dial tcp: connection refused", h.LastError, "the last error outlives a later success")

	registry.RecordFailure("socrata", nil)
	assert.Equal(t, "dial tcp: connection refused", registry.GetHealth("socrata").LastError)
}

func TestRegistry_UnknownNamesIgnored(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.NotPanics(t, func() {
		registry.RecordSuccess("nominatim")
		registry.RecordFailure("nominatim", assert.AnError)
	})
	assert.Empty(t, registry.GetAllHealth())
}

func TestRegistry_GetAllHealthSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	registered(registry, "socrata", "openrouteservice", "postgres-incidents")

	var names []string
	for _, h := range registry.GetAllHealth() {
		names = append(names, h.Name)
	}
	assert.Equal(t, []string{"openrouteservice", "postgres-incidents", "socrata"}, names)
}

func TestRegistry_Overall(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.Equal(t, resilience.StatusHealthy, registry.Overall(), "empty registry")

	registered(registry, "openrouteservice")
	flaky := fastClient("socrata", -1, func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 }, registry)
	assert.Equal(t, resilience.StatusHealthy, registry.Overall())

	_, err := get(t, context.Background(), flaky, "http://127.0.0.1:1")
	require.Error(t, err)

	assert.Equal(t, resilience.StatusUnhealthy, registry.GetHealth("socrata").Status())
	assert.Equal(t, resilience.StatusHealthy, registry.GetHealth("openrouteservice").Status())
	assert.Equal(t, resilience.StatusUnhealthy, registry.Overall())
}

func TestProviderHealth_Status(t *testing.T) {
	for state, want := range map[gobreaker.State]string{
		gobreaker.StateClosed:   resilience.StatusHealthy,
		gobreaker.StateHalfOpen: resilience.StatusDegraded,
		gobreaker.StateOpen:     resilience.StatusUnhealthy,
	} {
		h := &resilience.ProviderHealth{CircuitState: state}
		assert.Equal(t, want, h.Status(), state.String())
	}
}

func TestClient_CountsExposedThroughHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	u := newUpstream(t, http.StatusOK)
	c := fastClient("ors-counts", 0, nil, registry)

	for i := 0; i < 3; i++ {
		_, err := get(t, context.Background(), c, u.URL)
		require.NoError(t, err)
	}

	counts := registry.GetHealth("ors-counts").Counts
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(3), counts.TotalSuccesses)
	assert.Zero(t, counts.TotalFailures)
}
