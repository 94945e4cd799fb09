package openrouteservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/saferoute/saferoute/internal/geocoding"
)

// Geocode resolves free text to the best matching place using /geocode/search.
func (c *Client) Geocode(ctx context.Context, text string) (*geocoding.Place, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, geocoding.ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("text", text)
	params.Set("size", "1")
	if c.boundaryCountry != "" {
		params.Set("boundary.country", c.boundaryCountry)
	}

	reqURL := c.baseURL + "/geocode/search?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	status, body, err := c.do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", geocoding.ErrProviderUnavailable, err)
	}

	if status != http.StatusOK {
		var apiErr geocodeErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusForbidden || status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: status %d %s", geocoding.ErrProviderUnavailable, status, apiErr.Error)
		}
		// Pelias answers unparseable queries with 400; treat them as no match.
		c.logger.Debug().Int("status", status).Str("error", apiErr.Error).Msg("geocode request rejected")
		return nil, geocoding.ErrNoMatch
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding geocode response: %w", err)
	}

	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		return &geocoding.Place{
			Lon:        f.Geometry.Coordinates[0],
			Lat:        f.Geometry.Coordinates[1],
			Label:      f.Properties.Label,
			Confidence: f.Properties.Confidence,
		}, nil
	}

	return nil, geocoding.ErrNoMatch
}
