// Package socrata provides an incident feed client for Socrata open data portals.
package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/saferoute/saferoute/internal/incident"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the San Francisco open data portal.
	DefaultBaseURL = "https://data.sfgov.org"

	// ProviderName identifies this provider.
	ProviderName = "socrata"

	// DefaultLimit caps the number of rows requested per fetch.
	DefaultLimit = 50000

	// DefaultLookback is how far back incidents are requested.
	DefaultLookback = 180 * 24 * time.Hour
)

// Dataset describes a Socrata incident dataset and the columns holding each field.
type Dataset struct {
	// Portal is the base URL of the open data portal hosting the dataset.
	Portal string

	// ResourcePath is the SODA resource path, e.g. "/resource/wpas-4dd2.json".
	ResourcePath string

	LatitudeField    string
	LongitudeField   string
	CategoryField    string
	DescriptionField string
	DatetimeField    string
}

// SFPoliceIncidents is the San Francisco Police Department incident report dataset.
var SFPoliceIncidents = Dataset{
	Portal:           DefaultBaseURL,
	ResourcePath:     "/resource/wpas-4dd2.json",
	LatitudeField:    "latitude",
	LongitudeField:   "longitude",
	CategoryField:    "incident_category",
	DescriptionField: "incident_description",
	DatetimeField:    "incident_datetime",
}

// NYPDComplaints is the NYPD complaint data (current year) dataset.
// It has no separate category column; the offense description is used as the category.
var NYPDComplaints = Dataset{
	Portal:         "https://data.cityofnewyork.us",
	ResourcePath:   "/resource/qgea-i56i.json",
	LatitudeField:  "latitude",
	LongitudeField: "longitude",
	CategoryField:  "ofns_desc",
	DatetimeField:  "cmplnt_fr_dt",
}

// DatasetByName returns the preset for "sf" or "nypd".
func DatasetByName(name string) (Dataset, bool) {
	switch name {
	case "sf":
		return SFPoliceIncidents, true
	case "nypd":
		return NYPDComplaints, true
	}
	return Dataset{}, false
}

// ClientConfig holds configuration for the Socrata client.
type ClientConfig struct {
	// BaseURL overrides the dataset's portal.
	BaseURL string

	// Dataset selects the resource and column names (defaults to SFPoliceIncidents).
	Dataset Dataset

	// AppToken is sent as X-App-Token when set; it raises the portal's rate limits.
	AppToken string

	// Lookback limits the feed to incidents newer than now minus Lookback (default: 180 days).
	Lookback time.Duration

	// Limit caps the number of rows requested (default: 50000).
	Limit int

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 30s).
	Timeout time.Duration

	// Registry receives provider health when the default HTTP client is used.
	Registry *resilience.Registry

	// Now returns the current time; overridable in tests.
	Now func() time.Time
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a Socrata incident feed client.
type Client struct {
	baseURL    string
	dataset    Dataset
	appToken   string
	lookback   time.Duration
	limit      int
	httpClient HTTPDoer
	now        func() time.Time
}

// NewClient creates a new Socrata client.
func NewClient(cfg ClientConfig) *Client {
	dataset := cfg.Dataset
	if dataset.ResourcePath == "" {
		dataset = SFPoliceIncidents
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = dataset.Portal
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = DefaultLookback
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Registry:        cfg.Registry,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		dataset:    dataset,
		appToken:   cfg.AppToken,
		lookback:   lookback,
		limit:      limit,
		httpClient: httpClient,
		now:        now,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return ProviderName
}

// FetchSnapshot fetches recent incidents and returns them as a snapshot.
// Rows with missing or unparsable coordinates are skipped.
func (c *Client) FetchSnapshot(ctx context.Context) (*incident.Snapshot, error) {
	rows, err := c.fetchRows(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]incident.Record, 0, len(rows))
	for _, row := range rows {
		if r, ok := c.toRecord(row); ok {
			records = append(records, r)
		}
	}

	return incident.NewSnapshot(ProviderName, records), nil
}

func (c *Client) fetchRows(ctx context.Context) ([]map[string]any, error) {
	reqURL := c.baseURL + c.dataset.ResourcePath + "?" + c.query().Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch incidents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from incidents endpoint", resp.StatusCode)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode incidents response: %w", err)
	}
	return rows, nil
}

// query builds the SoQL parameters.
func (c *Client) query() url.Values {
	d := c.dataset

	selectFields := []string{d.LatitudeField, d.LongitudeField}
	for _, f := range []string{d.CategoryField, d.DescriptionField, d.DatetimeField} {
		if f != "" {
			selectFields = append(selectFields, f)
		}
	}

	where := fmt.Sprintf("%s IS NOT NULL AND %s IS NOT NULL", d.LatitudeField, d.LongitudeField)
	if d.DatetimeField != "" {
		since := c.now().Add(-c.lookback).UTC().Format("2006-01-02T15:04:05")
		where += fmt.Sprintf(" AND %s >= '%s'", d.DatetimeField, since)
	}

	q := url.Values{}
	q.Set("$select", strings.Join(selectFields, ","))
	q.Set("$where", where)
	q.Set("$limit", strconv.Itoa(c.limit))
	if d.DatetimeField != "" {
		q.Set("$order", d.DatetimeField+" DESC")
	}
	return q
}

// toRecord converts a raw feed row to a domain Record.
func (c *Client) toRecord(row map[string]any) (incident.Record, bool) {
	lat, ok := incident.ParseCoordinate(stringField(row, c.dataset.LatitudeField))
	if !ok {
		return incident.Record{}, false
	}
	lon, ok := incident.ParseCoordinate(stringField(row, c.dataset.LongitudeField))
	if !ok {
		return incident.Record{}, false
	}

	return incident.Record{
		Lat:         lat,
		Lon:         lon,
		Category:    stringField(row, c.dataset.CategoryField),
		Description: stringField(row, c.dataset.DescriptionField),
		OccurredAt:  parseFloatingTimestamp(stringField(row, c.dataset.DatetimeField)),
	}, true
}

// stringField reads a column as a string. Socrata serializes numbers as
// strings, but some datasets emit raw JSON numbers.
func stringField(row map[string]any, field string) string {
	if field == "" {
		return ""
	}
	switch v := row[field].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// parseFloatingTimestamp parses Socrata's floating timestamp format.
func parseFloatingTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Ensure Client implements incident.Provider.
var _ incident.Provider = (*Client)(nil)
