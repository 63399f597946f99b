package geo

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

func TestDistanceMeters(t *testing.T) {
	a := venue.Point{Lat: 40.7306, Lon: -74.0003}
	assert.InDelta(t, 0, DistanceMeters(a, a), 1e-6)

	// Austin to Dallas is roughly 293 km.
	d := DistanceMeters(venue.Point{Lat: 30.2672, Lon: -97.7431}, venue.Point{Lat: 32.7767, Lon: -96.7970})
	assert.InDelta(t, 293000, d, 3000)

	// One thousandth of a degree of latitude is about 111 m.
	d = DistanceMeters(venue.Point{Lat: 40.730, Lon: -74.0}, venue.Point{Lat: 40.731, Lon: -74.0})
	assert.InDelta(t, 111, d, 1)

	b := venue.Point{Lat: 51.5, Lon: -0.12}
	assert.InDelta(t, DistanceMeters(a, b), DistanceMeters(b, a), 1e-6)
}

func TestCell(t *testing.T) {
	assert.Equal(t, NoGeoCell, Cell(nil))
	assert.Equal(t, "40.730,-74.000", Cell(&venue.Point{Lat: 40.7306, Lon: -74.0003}))
	assert.Equal(t, "40.730,-74.000", Cell(&venue.Point{Lat: 40.73, Lon: -74.0}))
	assert.Equal(t, "0.000,0.000", Cell(&venue.Point{Lat: -0.0004, Lon: 0.0004}))
	// truncation, not rounding
	assert.Equal(t, "40.730,-73.999", Cell(&venue.Point{Lat: 40.7309, Lon: -73.9999}))
}

func TestValidPoint(t *testing.T) {
	assert.False(t, ValidPoint(nil))
	assert.False(t, ValidPoint(&venue.Point{}))
	assert.False(t, ValidPoint(&venue.Point{Lat: 91, Lon: 0}))
	assert.True(t, ValidPoint(&venue.Point{Lat: 40.7, Lon: -74}))
}

func TestEncodeDecodePoint(t *testing.T) {
	b, err := EncodePoint(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	p := &venue.Point{Lat: 40.7306, Lon: -74.0003}
	b, err = EncodePoint(p)
	require.NoError(t, err)
	require.NotEmpty(t, b)

	got, err := DecodePoint(b)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, p.Lat, got.Lat, 1e-9)
	assert.InDelta(t, p.Lon, got.Lon, 1e-9)

	got, err = DecodePoint(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = DecodePoint([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func square(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
}

func TestNeighborhoodsLookup(t *testing.T) {
	village := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, village.Push(square(-74.01, 40.72, -73.99, 40.74)))

	// Outer ring with a hole stored as a second part.
	donut := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, donut.Push(square(-73.98, 40.70, -73.90, 40.78)))
	require.NoError(t, donut.Push(square(-73.95, 40.73, -73.93, 40.75)))

	n := NewNeighborhoods([]Neighborhood{
		{Name: "Greenwich Village", Shape: village},
		{Name: "Donut", Shape: donut},
		{Name: "", Shape: village},
	})
	assert.Equal(t, 2, n.Len())

	name, ok := n.Lookup(venue.Point{Lat: 40.7306, Lon: -74.0003})
	assert.True(t, ok)
	assert.Equal(t, "Greenwich Village", name)

	name, ok = n.Lookup(venue.Point{Lat: 40.71, Lon: -73.97})
	assert.True(t, ok)
	assert.Equal(t, "Donut", name)

	_, ok = n.Lookup(venue.Point{Lat: 40.74, Lon: -73.94})
	assert.False(t, ok, "point in hole")

	name, ok = n.Lookup(venue.Point{Lat: 40.72, Lon: -74.00})
	assert.True(t, ok, "point on outer edge")
	assert.Equal(t, "Greenwich Village", name)

	_, ok = n.Lookup(venue.Point{Lat: 10, Lon: 10})
	assert.False(t, ok)

	var empty *Neighborhoods
	_, ok = empty.Lookup(venue.Point{Lat: 1, Lon: 1})
	assert.False(t, ok)
}

func writeTestShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "hoods.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NTANAME", 40)}))

	poly := shp.NewPolygon([][]shp.Point{{
		{X: -74.01, Y: 40.72}, {X: -74.01, Y: 40.74}, {X: -73.99, Y: 40.74}, {X: -73.99, Y: 40.72}, {X: -74.01, Y: 40.72},
	}})
	row := w.Write(poly)
	require.NoError(t, w.WriteAttribute(int(row), 0, "Greenwich Village"))
	w.Close()
	return path
}

func TestLoadShapefile(t *testing.T) {
	path := writeTestShapefile(t, t.TempDir())

	n, err := LoadShapefile(path, "ntaname")
	require.NoError(t, err)
	require.Equal(t, 1, n.Len())

	name, ok := n.Lookup(venue.Point{Lat: 40.73, Lon: -74.0})
	assert.True(t, ok)
	assert.Equal(t, "Greenwich Village", name)

	_, err = LoadShapefile(path, "BORO")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func zipDir(t *testing.T, srcDir, dest string) {
	t.Helper()
	f, err := os.Create(dest)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	entries, err := os.ReadDir(srcDir)
	require.NoError(t, err)
	for _, e := range entries {
		w, err := zw.Create("hoods/" + e.Name())
		require.NoError(t, err)
		in, err := os.Open(filepath.Join(srcDir, e.Name()))
		require.NoError(t, err)
		_, err = io.Copy(w, in)
		require.NoError(t, err)
		in.Close()
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestLoadNeighborhoods_ZipOverHTTP(t *testing.T) {
	shpDir := t.TempDir()
	writeTestShapefile(t, shpDir)
	archive := filepath.Join(t.TempDir(), "hoods.zip")
	zipDir(t, shpDir, archive)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer srv.Close()

	n, err := LoadNeighborhoods(context.Background(), srv.Client(), srv.URL+"/hoods.zip", "NTANAME", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, n.Len())
}

func TestLoadNeighborhoods_DownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := LoadNeighborhoods(context.Background(), srv.Client(), srv.URL+"/missing.zip", "", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestPolygonToMultiPolygon_ClosesOpenRing(t *testing.T) {
	poly := shp.NewPolygon([][]shp.Point{{
		{X: -74.01, Y: 40.72}, {X: -74.01, Y: 40.74}, {X: -73.99, Y: 40.74}, {X: -73.99, Y: 40.72},
	}})
	mp := polygonToMultiPolygon(poly)
	require.NotNil(t, mp)

	flat := mp.Polygon(0).LinearRing(0).FlatCoords()
	assert.Equal(t, flat[:2], flat[len(flat)-2:])

	name, ok := NewNeighborhoods([]Neighborhood{{Name: "Open", Shape: mp}}).Lookup(venue.Point{Lat: 40.73, Lon: -74.0})
	assert.True(t, ok)
	assert.Equal(t, "Open", name)
}
