// Package incident provides the incident index: the current pool of open
// crime/complaint records used for route safety scoring.
package incident

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Provider errors.
var (
	ErrNoSnapshot          = errors.New("no incident snapshot available")
	ErrProviderUnavailable = errors.New("incident provider unavailable")
)

// Record is a single reported incident.
type Record struct {
	Lat         float64
	Lon         float64
	Category    string
	Description string
	OccurredAt  time.Time
}

// Label returns the category, or the description when the category is blank.
func (r *Record) Label() string {
	if c := strings.TrimSpace(r.Category); c != "" {
		return c
	}
	return strings.TrimSpace(r.Description)
}

// HasValidPosition reports whether the record carries finite, in-range coordinates.
func (r *Record) HasValidPosition() bool {
	if math.IsNaN(r.Lat) || math.IsNaN(r.Lon) || math.IsInf(r.Lat, 0) || math.IsInf(r.Lon, 0) {
		return false
	}
	return r.Lat >= -90 && r.Lat <= 90 && r.Lon >= -180 && r.Lon <= 180
}

// Snapshot is an immutable set of incident records.
// A refresh replaces the whole snapshot; records are never merged or edited in place.
type Snapshot struct {
	// Records holds every incident in the snapshot.
	Records []Record

	// FetchedAt is when this snapshot was retrieved from the provider.
	FetchedAt time.Time

	// Provider identifies the data source.
	Provider string
}

// NewSnapshot creates a snapshot from records, dropping those without a usable position.
func NewSnapshot(provider string, records []Record) *Snapshot {
	kept := make([]Record, 0, len(records))
	for i := range records {
		if records[i].HasValidPosition() {
			kept = append(kept, records[i])
		}
	}
	return &Snapshot{
		Records:   kept,
		FetchedAt: time.Now(),
		Provider:  provider,
	}
}

// Len returns the number of records, tolerating a nil snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// CategoryCount is the number of records sharing a label.
type CategoryCount struct {
	Label string
	Count int
}

// TopCategories returns label counts in descending order, limited to n entries (n <= 0 means all).
// Records with neither category nor description are counted as "Unknown".
func (s *Snapshot) TopCategories(n int) []CategoryCount {
	if s == nil {
		return nil
	}

	counts := make(map[string]int)
	for i := range s.Records {
		label := s.Records[i].Label()
		if label == "" {
			label = "Unknown"
		}
		counts[label]++
	}

	result := make([]CategoryCount, 0, len(counts))
	for label, count := range counts {
		result = append(result, CategoryCount{Label: label, Count: count})
	}
	sort.Slice(result, func(a, b int) bool {
		if result[a].Count != result[b].Count {
			return result[a].Count > result[b].Count
		}
		return result[a].Label < result[b].Label
	})

	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result
}

// ParseCoordinate parses a feed coordinate value. Feeds deliver coordinates as
// strings that may be empty or garbage; ok is false for anything unusable.
func ParseCoordinate(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
