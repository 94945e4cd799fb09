package safety

import (
	"math"

	"github.com/saferoute/saferoute/internal/incident"
)

// Grade is a letter bucket of a safety score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor buckets a score: >=90 A, >=80 B, >=70 C, >=60 D, otherwise F.
func GradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// Config holds the scoring constants. The normalization divisors and weights
// are calibrated to one metro area's incident volume and should be tuned per
// deployment region.
//
// NewScorer treats any field <= 0 as unset and substitutes its default, so no
// constant can be configured as zero. A region wanting a near-zero neutral or
// base score sets a small positive value such as 0.1.
type Config struct {
	// Radius is the density neighbourhood in degrees. Default: 0.005.
	Radius float64

	// NeutralScore is returned when there is nothing to score against. Default: 85.
	NeutralScore float64

	// ScoreStride is the polyline sampling stride for scoring. Default: 5.
	ScoreStride int

	// SegmentStride is the polyline sampling stride for risk segments. Default: 10.
	SegmentStride int

	// AvgDivisor and MaxDivisor normalize average and peak density. Defaults: 300, 500.
	AvgDivisor float64
	MaxDivisor float64

	// NormCap bounds each normalized density. Default: 1.5.
	NormCap float64

	// BaseScore is the score of a route with zero density. Default: 90.
	BaseScore float64

	// AvgWeight and MaxWeight scale the normalized densities into penalty points. Defaults: 20, 25.
	AvgWeight float64
	MaxWeight float64

	// MediumThreshold and HighThreshold classify sampled densities as risk segments.
	// A density must exceed the threshold. Defaults: 15, 50.
	MediumThreshold float64
	HighThreshold   float64
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		Radius:          DefaultRadius,
		NeutralScore:    85,
		ScoreStride:     5,
		SegmentStride:   10,
		AvgDivisor:      300,
		MaxDivisor:      500,
		NormCap:         1.5,
		BaseScore:       90,
		AvgWeight:       20,
		MaxWeight:       25,
		MediumThreshold: 15,
		HighThreshold:   50,
	}
}

// Scorer scores routes and locates risk segments.
type Scorer struct {
	config Config
}

// NewScorer creates a Scorer, filling unset fields from DefaultConfig.
func NewScorer(config Config) *Scorer {
	d := DefaultConfig()
	if config.Radius <= 0 {
		config.Radius = d.Radius
	}
	if config.NeutralScore <= 0 {
		config.NeutralScore = d.NeutralScore
	}
	if config.ScoreStride <= 0 {
		config.ScoreStride = d.ScoreStride
	}
	if config.SegmentStride <= 0 {
		config.SegmentStride = d.SegmentStride
	}
	if config.AvgDivisor <= 0 {
		config.AvgDivisor = d.AvgDivisor
	}
	if config.MaxDivisor <= 0 {
		config.MaxDivisor = d.MaxDivisor
	}
	if config.NormCap <= 0 {
		config.NormCap = d.NormCap
	}
	if config.BaseScore <= 0 {
		config.BaseScore = d.BaseScore
	}
	if config.AvgWeight <= 0 {
		config.AvgWeight = d.AvgWeight
	}
	if config.MaxWeight <= 0 {
		config.MaxWeight = d.MaxWeight
	}
	if config.MediumThreshold <= 0 {
		config.MediumThreshold = d.MediumThreshold
	}
	if config.HighThreshold <= 0 {
		config.HighThreshold = d.HighThreshold
	}
	return &Scorer{config: config}
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config {
	return s.config
}

// SafetyScore is the result of scoring one route.
type SafetyScore struct {
	// Value is in [0,100]; higher is safer.
	Value float64
	Grade Grade

	// AvgDensity and MaxDensity are over the sampled points.
	AvgDensity float64
	MaxDensity float64

	// Samples is the number of polyline points evaluated. Zero for a neutral score.
	Samples int
}

// Score rates a polyline against the incidents.
// An empty incident set, or a polyline with fewer than two points, yields the neutral score.
func (s *Scorer) Score(polyline []Point, incidents []incident.Record) SafetyScore {
	return s.score(polyline, prepare(incidents))
}

func (s *Scorer) score(polyline []Point, index []weighted) SafetyScore {
	if len(index) == 0 || len(polyline) < 2 {
		return s.neutral()
	}

	var sum, peak float64
	samples := 0
	for i := 0; i < len(polyline); i += s.config.ScoreStride {
		d := densityOf(polyline[i], index, s.config.Radius)
		sum += d
		if d > peak {
			peak = d
		}
		samples++
	}

	score := s.fromDensities(sum/float64(samples), peak)
	score.Samples = samples
	return score
}

func (s *Scorer) fromDensities(avg, peak float64) SafetyScore {
	normAvg := math.Min(avg/s.config.AvgDivisor, s.config.NormCap)
	normMax := math.Min(peak/s.config.MaxDivisor, s.config.NormCap)

	raw := s.config.BaseScore - (normAvg*s.config.AvgWeight + normMax*s.config.MaxWeight)
	value := math.Max(0, math.Min(100, raw))

	return SafetyScore{
		Value:      value,
		Grade:      GradeFor(value),
		AvgDensity: avg,
		MaxDensity: peak,
	}
}

func (s *Scorer) neutral() SafetyScore {
	return SafetyScore{
		Value: s.config.NeutralScore,
		Grade: GradeFor(s.config.NeutralScore),
	}
}
