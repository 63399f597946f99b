// Package geo holds the spatial helpers used by venue ingestion: great-circle
// distance, coarse geo cells, EWKB point encoding and neighborhood lookup.
package geo

import (
	"math"
	"strconv"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// NoGeoCell is the cell key for records without coordinates.
const NoGeoCell = "nogeo"

const earthRadiusMeters = 6371008.8

// DistanceMeters returns the haversine distance between two points.
func DistanceMeters(a, b venue.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Cell returns the coarse grouping cell for a point: both coordinates
// truncated toward zero to three decimals (roughly 100m). A nil point maps to
// NoGeoCell.
func Cell(p *venue.Point) string {
	if p == nil {
		return NoGeoCell
	}
	return truncate3(p.Lat) + "," + truncate3(p.Lon)
}

func truncate3(v float64) string {
	// nudge away from zero so 40.73*1000 = 40729.999… still truncates to 40730
	t := math.Trunc(v*1000+math.Copysign(1e-7, v)) / 1000
	if t == 0 {
		t = 0 // drop negative zero
	}
	return strconv.FormatFloat(t, 'f', 3, 64)
}

// ValidPoint reports whether p is a usable WGS84 coordinate. Null island
// (0,0) is treated as missing.
func ValidPoint(p *venue.Point) bool {
	if p == nil {
		return false
	}
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return false
	}
	return p.Lat != 0 || p.Lon != 0
}
