package safety

import (
	"fmt"

	"github.com/saferoute/saferoute/internal/incident"
)

// RiskLevel classifies a risk segment.
type RiskLevel string

const (
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskSegment is a sampled polyline point whose incident density crossed the threshold.
type RiskSegment struct {
	// Index is the position of the sampled point in the polyline.
	Index    int
	Position Point
	Density  float64
	Level    RiskLevel

	// Label is the most frequent incident label near the point, empty if none.
	Label string
	// Count is the number of incidents carrying Label.
	Count int

	Description string
}

const genericRiskDescription = "High crime activity detected"

// FindRiskSegments scans the polyline at the segment stride and returns the
// points whose density exceeds the medium threshold, in traversal order.
func (s *Scorer) FindRiskSegments(polyline []Point, incidents []incident.Record) []RiskSegment {
	return s.findRiskSegments(polyline, prepare(incidents))
}

func (s *Scorer) findRiskSegments(polyline []Point, index []weighted) []RiskSegment {
	segments := []RiskSegment{}
	if len(polyline) < 2 || len(index) == 0 {
		return segments
	}

	for i := 0; i < len(polyline); i += s.config.SegmentStride {
		p := polyline[i]
		d := densityOf(p, index, s.config.Radius)
		if d <= s.config.MediumThreshold {
			continue
		}

		level := RiskMedium
		if d > s.config.HighThreshold {
			level = RiskHigh
		}

		label, count := dominantLabel(p, index, s.config.Radius)
		description := genericRiskDescription
		if label != "" {
			description = fmt.Sprintf("High %s activity (%d incidents)", label, count)
		}

		segments = append(segments, RiskSegment{
			Index:       i,
			Position:    p,
			Density:     d,
			Level:       level,
			Label:       label,
			Count:       count,
			Description: description,
		})
	}

	return segments
}

// dominantLabel returns the most frequent label among incidents within radius.
// Ties go to the label seen first in incident order.
func dominantLabel(p Point, index []weighted, radius float64) (string, int) {
	counts := make(map[string]int)
	var order []string

	for i := range index {
		if index[i].label == "" || !within(p, index[i].lat, index[i].lon, radius) {
			continue
		}
		if _, seen := counts[index[i].label]; !seen {
			order = append(order, index[i].label)
		}
		counts[index[i].label]++
	}

	var best string
	bestCount := 0
	for _, label := range order {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best, bestCount
}
