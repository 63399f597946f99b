package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// SRID is the spatial reference used for every stored geometry.
const SRID = 4326

// EncodePoint converts a venue point to EWKB bytes with SRID 4326. A nil
// point encodes to nil so it binds as SQL NULL.
func EncodePoint(p *venue.Point) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	g := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode point")
	}
	return data, nil
}

// DecodePoint parses EWKB point bytes. Empty input decodes to nil.
func DecodePoint(data []byte) (*venue.Point, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode point")
	}
	pt, ok := g.(*geom.Point)
	if !ok {
		return nil, eris.Errorf("geo: expected point geometry, got %T", g)
	}
	if pt.Empty() {
		return nil, nil
	}
	return &venue.Point{Lat: pt.Y(), Lon: pt.X()}, nil
}
