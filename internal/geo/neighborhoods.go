package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Neighborhood is a named area made of one or more rings.
type Neighborhood struct {
	Name   string
	Shape  *geom.MultiPolygon
	bounds *geom.Bounds
}

// Neighborhoods resolves points to neighborhood names by point-in-polygon.
type Neighborhoods struct {
	areas []Neighborhood
}

// NewNeighborhoods builds an index over the given areas.
func NewNeighborhoods(areas []Neighborhood) *Neighborhoods {
	n := &Neighborhoods{}
	for _, a := range areas {
		if a.Shape == nil || a.Name == "" {
			continue
		}
		a.bounds = a.Shape.Bounds()
		n.areas = append(n.areas, a)
	}
	return n
}

// Len returns the number of indexed areas.
func (n *Neighborhoods) Len() int {
	if n == nil {
		return 0
	}
	return len(n.areas)
}

// Lookup returns the first area containing p. Points on an outer edge count
// as inside. Rings are combined with the even-odd rule, so holes stored as
// separate parts are excluded.
func (n *Neighborhoods) Lookup(p venue.Point) (string, bool) {
	if n == nil {
		return "", false
	}
	c := geom.Coord{p.Lon, p.Lat}
	for _, a := range n.areas {
		if !a.bounds.OverlapsPoint(geom.XY, c) {
			continue
		}
		inside := false
		for i := 0; i < a.Shape.NumPolygons(); i++ {
			poly := a.Shape.Polygon(i)
			for j := 0; j < poly.NumLinearRings(); j++ {
				if xy.IsPointInRing(geom.XY, c, poly.LinearRing(j).FlatCoords()) {
					inside = !inside
				}
			}
		}
		if inside {
			return a.Name, true
		}
	}
	return "", false
}

// LoadShapefile reads polygon areas from a .shp file, taking each area's
// name from the given attribute field.
func LoadShapefile(path, nameField string) (*Neighborhoods, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := fieldIndex(reader, nameField)
	if nameIdx < 0 {
		return nil, eris.Errorf("geo: field %q not found in %s", nameField, path)
	}

	var areas []Neighborhood
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}
		name := strings.TrimSpace(reader.Attribute(nameIdx))
		mp := polygonToMultiPolygon(p)
		if name == "" || mp == nil {
			continue
		}
		areas = append(areas, Neighborhood{Name: name, Shape: mp})
	}

	zap.L().Debug("neighborhood shapefile loaded",
		zap.String("path", path),
		zap.Int("areas", len(areas)),
	)
	return NewNeighborhoods(areas), nil
}

// fieldIndex returns the index of a named field in the shapefile, or -1.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToMultiPolygon turns each shapefile part into one single-ring polygon.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRID)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 3 {
			continue
		}

		flat := make([]float64, 0, 2*(end-start+1))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		if first, last := p.Points[start], p.Points[end-1]; first != last {
			flat = append(flat, first.X, first.Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("geo: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
