// Package match resolves normalized candidates against the canonical venues
// already stored for a city.
package match

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/geo"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Term weights. A term whose inputs are missing is left out of both the
// numerator and the denominator.
const (
	WeightName     = 0.5
	WeightGeo      = 0.3
	WeightCategory = 0.2
	WeightAlias    = 0.2

	// DefaultThreshold is the minimum composite score for a match.
	DefaultThreshold = 0.85

	containmentFloor = 0.85
	aliasTrigger     = 0.9
)

// Profile is the comparable view of a candidate or a stored venue. Name and
// Aliases hold normalized forms.
type Profile struct {
	ID       string
	Name     string
	Aliases  []string
	Location *venue.Point
	Category venue.Category
}

// CandidateProfile builds a Profile from a normalized candidate.
func CandidateProfile(c venue.Candidate) Profile {
	return Profile{
		Name:     c.NormalizedName,
		Aliases:  normalizeAll(c.Aliases),
		Location: c.Location,
		Category: c.Category,
	}
}

// VenueProfile builds a Profile from a stored venue.
func VenueProfile(v venue.Venue) Profile {
	name := v.NormalizedName
	if name == "" {
		name = normalize.Name(v.Name)
	}
	return Profile{
		ID:       v.ID,
		Name:     name,
		Aliases:  normalizeAll(v.Aliases),
		Location: v.Location,
		Category: v.Category,
	}
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if k := normalize.Name(n); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// NameSimilarity is normalized Levenshtein similarity in [0,1], raised to
// 0.85 when one non-empty name contains the other. Empty names score 0.
func NameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	s := levenshtein.Similarity(a, b, nil)
	if (strings.Contains(a, b) || strings.Contains(b, a)) && s < containmentFloor {
		s = containmentFloor
	}
	return s
}

// GeoScore maps a distance in meters to a stepped proximity score.
func GeoScore(meters float64) float64 {
	switch {
	case meters <= 25:
		return 1.0
	case meters <= 50:
		return 0.9
	case meters <= 100:
		return 0.7
	case meters <= 500:
		return 0.3
	default:
		return 0
	}
}

// Breakdown is a composite score with its applied terms. A nil term was
// not applied.
type Breakdown struct {
	Name     float64
	Geo      *float64
	Category *float64
	Alias    bool
	Distance float64 // meters; +Inf when either side lacks coordinates
	Total    float64
}

// Score compares two profiles. It is symmetric in its arguments.
func Score(a, b Profile) Breakdown {
	bd := Breakdown{Name: NameSimilarity(a.Name, b.Name), Distance: math.Inf(1)}
	num := WeightName * bd.Name
	den := WeightName

	if a.Location != nil && b.Location != nil {
		bd.Distance = geo.DistanceMeters(*a.Location, *b.Location)
		g := GeoScore(bd.Distance)
		bd.Geo = &g
		num += WeightGeo * g
		den += WeightGeo
	}

	if a.Category.IsClassified() && b.Category.IsClassified() {
		c := 0.0
		if a.Category == b.Category {
			c = 1.0
		}
		bd.Category = &c
		num += WeightCategory * c
		den += WeightCategory
	}

	if aliasHit(a, b) {
		bd.Alias = true
		num += WeightAlias * 1.0
		den += WeightAlias
	}

	bd.Total = num / den
	return bd
}

// aliasHit reports whether any name pair other than (name, name) is more
// than 0.9 similar.
func aliasHit(a, b Profile) bool {
	if len(a.Aliases) == 0 && len(b.Aliases) == 0 {
		return false
	}
	for _, x := range a.Aliases {
		if NameSimilarity(x, b.Name) > aliasTrigger {
			return true
		}
		for _, y := range b.Aliases {
			if NameSimilarity(x, y) > aliasTrigger {
				return true
			}
		}
	}
	for _, y := range b.Aliases {
		if NameSimilarity(a.Name, y) > aliasTrigger {
			return true
		}
	}
	return false
}
