// Package openrouteservice implements routing.Provider and geocoding.Provider
// on the OpenRouteService directions and Pelias geocoding APIs.
package openrouteservice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/geocoding"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/routing"
)

const (
	ProviderName   = "openrouteservice"
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultTimeout = 10 * time.Second
)

var (
	_ routing.Provider   = (*Client)(nil)
	_ geocoding.Provider = (*Client)(nil)
)

// HTTPDoer executes HTTP requests. *resilience.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the ORS client. Only APIKey is required.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// HTTPClient defaults to a resilience.Client named ProviderName that
	// reports to Registry.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry

	// BoundaryCountry restricts geocoding to an ISO 3166 country code.
	BoundaryCountry string

	Logger zerolog.Logger
}

// Client talks to OpenRouteService.
type Client struct {
	apiKey          string
	baseURL         string
	boundaryCountry string
	http            HTTPDoer
	logger          zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		boundaryCountry: cfg.BoundaryCountry,
		http:            cfg.HTTPClient,
		logger:          cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = DefaultTimeout
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		c.http = resilience.NewClient(rc)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedProfiles lists the ORS profiles SafeRoute maps travel modes onto.
func (c *Client) SupportedProfiles() []routing.RouteProfile {
	return []routing.RouteProfile{routing.ProfileWalk, routing.ProfileBike, routing.ProfileCar}
}

// do sends req with the API key and reads the whole body. Only transport
// failures are errors; the caller interprets the status.
func (c *Client) do(ctx context.Context, req *http.Request) (int, []byte, error) {
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
