package safety

import (
	"math"

	"github.com/saferoute/saferoute/internal/incident"
)

// DefaultRadius is the neighbourhood radius in raw degrees (roughly a city block).
const DefaultRadius = 0.005

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Density returns the category-weighted count of incidents within radius of point.
// Distance is planar Euclidean on raw degrees; records with non-finite
// coordinates are skipped.
func Density(point Point, incidents []incident.Record, radius float64) float64 {
	var total float64
	for i := range incidents {
		r := &incidents[i]
		if !finite(r.Lat) || !finite(r.Lon) {
			continue
		}
		if within(point, r.Lat, r.Lon, radius) {
			total += Classify(r.Category, r.Description).Weight()
		}
	}
	return total
}

// weighted is an incident with its classification resolved once per call.
type weighted struct {
	lat, lon float64
	weight   float64
	label    string
}

// prepare resolves weights and labels so that sampling many points does not
// reclassify the same incident repeatedly.
func prepare(incidents []incident.Record) []weighted {
	out := make([]weighted, 0, len(incidents))
	for i := range incidents {
		r := &incidents[i]
		if !finite(r.Lat) || !finite(r.Lon) {
			continue
		}
		out = append(out, weighted{
			lat:    r.Lat,
			lon:    r.Lon,
			weight: Classify(r.Category, r.Description).Weight(),
			label:  r.Label(),
		})
	}
	return out
}

func densityOf(point Point, index []weighted, radius float64) float64 {
	var total float64
	for i := range index {
		if within(point, index[i].lat, index[i].lon, radius) {
			total += index[i].weight
		}
	}
	return total
}

func within(p Point, lat, lon, radius float64) bool {
	dLat := lat - p.Lat
	dLon := lon - p.Lon
	return math.Sqrt(dLat*dLat+dLon*dLon) <= radius
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
