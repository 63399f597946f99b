package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
)

func newTestServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeocode_Rooftop(t *testing.T) {
	var hits int32
	srv := newTestServer(t, `{
		"status": "OK",
		"results": [{
			"geometry": {"location": {"lat": 40.7308, "lng": -74.0007}, "location_type": "ROOFTOP"},
			"formatted_address": "131 W 3rd St, New York, NY 10012, USA"
		}]
	}`, &hits)

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	res, err := c.Geocode(context.Background(), Request{
		Address: "131 W 3rd St,  New York",
		Bounds:  &Bounds{South: 40.47, West: -74.26, North: 40.92, East: -73.70},
	})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.Precise())
	assert.Equal(t, QualityRooftop, res.Quality)
	assert.InDelta(t, 40.7308, res.Latitude, 1e-6)
	assert.Contains(t, res.FormattedAddress, "W 3rd St")
}

func TestGeocode_CachesResults(t *testing.T) {
	var hits int32
	srv := newTestServer(t, `{"status": "ZERO_RESULTS", "results": []}`, &hits)

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(100))
	for range 3 {
		res, err := c.Geocode(context.Background(), Request{Address: "nowhere street"})
		require.NoError(t, err)
		assert.False(t, res.Matched)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestGeocode_Approximate(t *testing.T) {
	var hits int32
	srv := newTestServer(t, `{
		"status": "OK",
		"results": [{"geometry": {"location": {"lat": 40.71, "lng": -74.0}, "location_type": "APPROXIMATE"}}]
	}`, &hits)

	res, err := NewClient("test-key", WithBaseURL(srv.URL)).Geocode(context.Background(), Request{Address: "New York"})
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, res.Precise())
}

func TestGeocode_EmptyAddress(t *testing.T) {
	res, err := NewClient("test-key", WithBaseURL("http://unused.invalid")).Geocode(context.Background(), Request{Address: "  "})
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestGeocode_OverQueryLimitIsTransient(t *testing.T) {
	var hits int32
	srv := newTestServer(t, `{"status": "OVER_QUERY_LIMIT", "error_message": "slow down"}`, &hits)

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Geocode(context.Background(), Request{Address: "1 Main St"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeocode_RequestDenied(t *testing.T) {
	var hits int32
	srv := newTestServer(t, `{"status": "REQUEST_DENIED", "error_message": "API key invalid"}`, &hits)

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Geocode(context.Background(), Request{Address: "1 Main St"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REQUEST_DENIED")
	assert.False(t, resilience.IsTransient(err))
}

func TestGeocode_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Geocode(context.Background(), Request{Address: "1 Main St"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestQuality(t *testing.T) {
	assert.Equal(t, QualityRange, quality("range_interpolated"))
	assert.Equal(t, QualityCentroid, quality("GEOMETRIC_CENTER"))
	assert.Equal(t, QualityApproximate, quality(""))
}
