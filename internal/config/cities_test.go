package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
cities:
  - name: New York
    bbox: {south: 40.49, west: -74.26, north: 40.92, east: -73.70}
    neighborhoods: [Greenwich Village, Williamsburg]
  - name: Austin
    bbox: {south: 30.09, west: -97.94, north: 30.52, east: -97.56}
    neighborhoods: [Downtown]
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	require.Len(t, cat.Cities, 2)

	city, err := cat.City("new york")
	require.NoError(t, err)
	assert.Equal(t, "New York", city.Name)
	assert.InDelta(t, 40.92, city.BBox.North, 1e-9)
	assert.Equal(t, []string{"Greenwich Village", "Williamsburg"}, city.Neighborhoods)

	_, err = cat.City("Boston")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown city")
}

func TestParseCatalog_InvalidBBox(t *testing.T) {
	_, err := ParseCatalog([]byte(`
cities:
  - name: Upside
    bbox: {south: 41, west: -74, north: 40, east: -73}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid city catalog")
}

func TestParseCatalog_MissingName(t *testing.T) {
	_, err := ParseCatalog([]byte(`
cities:
  - bbox: {south: 40, west: -74, north: 41, east: -73}
`))
	assert.Error(t, err)
}

func TestParseCatalog_Empty(t *testing.T) {
	_, err := ParseCatalog([]byte(`cities: []`))
	assert.Error(t, err)
}

func TestParseCatalog_Duplicate(t *testing.T) {
	_, err := ParseCatalog([]byte(`
cities:
  - name: Austin
    bbox: {south: 30, west: -98, north: 31, east: -97}
  - name: austin
    bbox: {south: 30, west: -98, north: 31, east: -97}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate city")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0644))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Cities, 2)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
