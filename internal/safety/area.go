package safety

import (
	"math"
	"sort"

	"github.com/saferoute/saferoute/internal/incident"
)

// LabelCount is how many incidents carried one label.
type LabelCount struct {
	Label string
	Count int
}

// AreaRating is the safety of the neighbourhood around a single point.
type AreaRating struct {
	Center Point
	Radius float64

	Score SafetyScore

	// Incidents is the number of records within Radius of Center.
	Incidents int

	// TopLabels are the most frequent incident labels in the area, most
	// frequent first; ties keep incident order.
	TopLabels []LabelCount
}

// RateArea scores the circle of radius degrees around center. The density is
// rescaled by area to the configured radius so an area score reads on the same
// scale as a route score. A non-positive radius uses the configured radius.
// An empty incident set yields the neutral score.
func (s *Scorer) RateArea(center Point, radius float64, incidents []incident.Record, top int) AreaRating {
	if radius <= 0 || math.IsNaN(radius) {
		radius = s.config.Radius
	}
	rating := AreaRating{Center: center, Radius: radius}

	index := prepare(incidents)
	if len(index) == 0 {
		rating.Score = s.neutral()
		return rating
	}

	var density float64
	counts := make(map[string]int)
	var order []string
	for i := range index {
		w := &index[i]
		if !within(center, w.lat, w.lon, radius) {
			continue
		}
		density += w.weight
		rating.Incidents++
		if counts[w.label] == 0 {
			order = append(order, w.label)
		}
		counts[w.label]++
	}

	scale := s.config.Radius / radius
	normalized := density * scale * scale
	rating.Score = s.fromDensities(normalized, normalized)
	rating.Score.Samples = 1

	for _, label := range order {
		rating.TopLabels = append(rating.TopLabels, LabelCount{Label: label, Count: counts[label]})
	}
	sort.SliceStable(rating.TopLabels, func(i, j int) bool {
		return rating.TopLabels[i].Count > rating.TopLabels[j].Count
	})
	if top >= 0 && len(rating.TopLabels) > top {
		rating.TopLabels = rating.TopLabels[:top]
	}
	return rating
}
