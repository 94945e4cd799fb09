package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestInit_Disabled(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

	provider, err := Init(context.Background(), Config{
		ServiceName:  "saferoute-api",
		OTLPEndpoint: "localhost:4317",
		Enabled:      false,
		SampleRatio:  5,
	})
	require.NoError(t, err)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(context.Background()))

	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestInit_RejectsSampleRatio(t *testing.T) {
	_, err := Init(context.Background(), Config{
		ServiceName:  "saferoute-api",
		OTLPEndpoint: "localhost:4317",
		Enabled:      true,
		SampleRatio:  1.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample ratio")
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		root  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := sampler(tt.ratio).Description()
		assert.Contains(t, desc, "ParentBased{root:"+tt.root)
	}
}

func TestProvider_ShutdownEmpty(t *testing.T) {
	assert.NoError(t, (&Provider{}).Shutdown(context.Background()))
}
