package safety

import (
	"fmt"
	"math"
)

// DisplayScore truncates a score to one decimal. Truncating never lifts a
// score across a grade boundary.
func DisplayScore(score float64) float64 {
	return math.Floor(score*10) / 10
}

// Summary returns a one-sentence description of a score.
func Summary(grade Grade, score float64) string {
	switch grade {
	case GradeA, GradeB:
		return fmt.Sprintf("Excellent safety rating (%.1f/100). This route passes through low-crime areas.", score)
	case GradeC:
		return fmt.Sprintf("Good safety rating (%.1f/100). Generally safe with moderate crime levels.", score)
	case GradeD:
		return fmt.Sprintf("Fair safety rating (%.1f/100). Exercise normal caution in some areas.", score)
	default:
		return fmt.Sprintf("Poor safety rating (%.1f/100). Consider alternative routes or extra precautions.", score)
	}
}

// Recommendations returns travel advice for a grade and its risk segments.
func Recommendations(grade Grade, segments []RiskSegment) []string {
	var recs []string

	switch grade {
	case GradeA, GradeB:
		recs = append(recs, "This route is generally safe for travel at most times.")
	case GradeC:
		recs = append(recs, "Stay aware of your surroundings, especially during evening hours.")
	default:
		recs = append(recs,
			"Consider taking this route during daylight hours when possible.",
			"Stay in well-lit, populated areas.",
		)
	}

	if len(segments) > 0 {
		recs = append(recs, fmt.Sprintf("Be extra cautious near %d identified high-crime areas along the route.", len(segments)))
	}

	return append(recs, "Trust your instincts and avoid areas that feel unsafe.")
}
