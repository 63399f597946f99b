package overpass

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
)

const sample = `{
  "elements": [
    {"type": "node", "id": 42, "lat": 40.7308, "lon": -74.0008,
     "tags": {"name": "Blue Note", "amenity": "bar", "website": "https://bluenote.net"}},
    {"type": "way", "id": 7, "center": {"lat": 40.7359, "lon": -74.0017},
     "tags": {"name": "Village Vanguard", "amenity": "music_venue"}}
  ]
}`

func TestQuery_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Contains(t, r.PostForm.Get("data"), "out center tags")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	client := NewClient(WithURL(srv.URL))
	resp, err := client.Query(context.Background(), "[out:json];node(1,2,3,4);out center tags;")
	require.NoError(t, err)
	require.Len(t, resp.Elements, 2)

	lat, lon, ok := resp.Elements[0].Coordinates()
	assert.True(t, ok)
	assert.InDelta(t, 40.7308, lat, 1e-9)
	assert.InDelta(t, -74.0008, lon, 1e-9)
	assert.Equal(t, "node/42", resp.Elements[0].Key())
	assert.Equal(t, "https://www.openstreetmap.org/node/42", resp.Elements[0].URL())

	lat, _, ok = resp.Elements[1].Coordinates()
	assert.True(t, ok)
	assert.InDelta(t, 40.7359, lat, 1e-9)
}

func TestQuery_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate_limited"))
	}))
	defer srv.Close()

	_, err := NewClient(WithURL(srv.URL)).Query(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overpass: unexpected status 429")
	assert.True(t, resilience.IsTransient(err))
}

func TestQuery_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := NewClient(WithURL(srv.URL)).Query(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestElement_NoCoordinates(t *testing.T) {
	_, _, ok := Element{Type: "relation", ID: 1}.Coordinates()
	assert.False(t, ok)
}

func TestVenueQuery(t *testing.T) {
	q := VenueQuery(BBox{South: 40.7, West: -74.02, North: 40.8, East: -73.9},
		[]string{"bar", "pub"}, []string{"park"}, nil, 90, 500)

	assert.Contains(t, q, "[out:json][timeout:90];")
	assert.Contains(t, q, `nwr["amenity"~"^(bar|pub)$"]["name"](40.700000,-74.020000,40.800000,-73.900000);`)
	assert.Contains(t, q, `nwr["leisure"~"^(park)$"]`)
	assert.NotContains(t, q, "tourism")
	assert.Contains(t, q, "out center tags 500;")

	q = VenueQuery(BBox{}, []string{"bar"}, nil, nil, 30, 0)
	assert.Contains(t, q, "out center tags;")
}
