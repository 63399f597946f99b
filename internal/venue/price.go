package venue

import (
	"math"
	"strings"
)

// PriceBand is the coarse price tier of a venue.
type PriceBand string

// Price bands. PriceUnknown is the explicit "undefined" band.
const (
	PriceUnknown  PriceBand = ""
	PriceFree     PriceBand = "FREE"
	PriceLow      PriceBand = "$"
	PriceModerate PriceBand = "$$"
	PriceHigh     PriceBand = "$$$"
	PriceLuxury   PriceBand = "$$$$"
)

// MapPrice maps a numeric price level (0 free .. 4 luxury) to a band. It is
// total: nil or negative levels map to PriceUnknown and levels above 4 clamp.
func MapPrice(level *int) PriceBand {
	if level == nil || *level < 0 {
		return PriceUnknown
	}
	switch *level {
	case 0:
		return PriceFree
	case 1:
		return PriceLow
	case 2:
		return PriceModerate
	case 3:
		return PriceHigh
	default:
		return PriceLuxury
	}
}

// AveragePriceLevel averages the non-nil levels and rounds half away from
// zero. Returns nil when no level is present.
func AveragePriceLevel(levels []*int) *int {
	var sum, n int
	for _, l := range levels {
		if l == nil || *l < 0 {
			continue
		}
		sum += *l
		n++
	}
	if n == 0 {
		return nil
	}
	avg := int(math.Round(float64(sum) / float64(n)))
	return &avg
}

// ParsePriceSymbols reads "$", "$$" … style price strings into a level.
// Returns nil for anything else.
func ParsePriceSymbols(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.Trim(s, "$€£") != "" {
		return nil
	}
	n := len([]rune(s))
	return &n
}

// ParsePriceBand reads a stored band back, defaulting to PriceUnknown.
func ParsePriceBand(s string) PriceBand {
	switch PriceBand(strings.TrimSpace(s)) {
	case PriceFree:
		return PriceFree
	case PriceLow:
		return PriceLow
	case PriceModerate:
		return PriceModerate
	case PriceHigh:
		return PriceHigh
	case PriceLuxury:
		return PriceLuxury
	default:
		return PriceUnknown
	}
}
