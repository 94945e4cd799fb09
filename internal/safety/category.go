// Package safety scores routes against nearby incident density.
//
// Everything in this package is a pure function of its inputs: no I/O, no
// locks, no global state. Callers pass the current incident snapshot on every
// call and may score different requests concurrently.
package safety

import "strings"

// Category is the severity class of an incident.
type Category int

const (
	CategoryOther Category = iota
	CategorySevere
	CategoryProperty
	CategoryArson
	CategoryFraud
	CategoryVehicle
)

// categoryRules is evaluated in order; the first rule with a matching term wins.
var categoryRules = []struct {
	category Category
	terms    []string
}{
	{CategorySevere, []string{"assault", "robbery", "rape", "murder", "homicide"}},
	{CategoryProperty, []string{"burglary", "theft", "larceny"}},
	{CategoryArson, []string{"arson"}},
	{CategoryFraud, []string{"fraud"}},
	{CategoryVehicle, []string{"vehicle", "motor"}},
}

var categoryWeights = map[Category]float64{
	CategorySevere:   8,
	CategoryProperty: 5,
	CategoryArson:    6,
	CategoryFraud:    3,
	CategoryVehicle:  3,
	CategoryOther:    1,
}

// Weight returns the density contribution of one incident in this category.
func (c Category) Weight() float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return 1
}

func (c Category) String() string {
	switch c {
	case CategorySevere:
		return "severe"
	case CategoryProperty:
		return "property"
	case CategoryArson:
		return "arson"
	case CategoryFraud:
		return "fraud"
	case CategoryVehicle:
		return "vehicle"
	default:
		return "other"
	}
}

// Classify maps free-text incident fields to a Category using case-insensitive
// substring matching. The description is consulted only when the category is blank.
func Classify(category, description string) Category {
	text := strings.TrimSpace(category)
	if text == "" {
		text = strings.TrimSpace(description)
	}
	if text == "" {
		return CategoryOther
	}

	text = strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, term := range rule.terms {
			if strings.Contains(text, term) {
				return rule.category
			}
		}
	}
	return CategoryOther
}
