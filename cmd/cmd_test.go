//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/config"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/metrics"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/pipeline"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/runlog"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/sources"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRootCommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "ingest", "runs", "serve"})
}

func TestFormatRunsList(t *testing.T) {
	start := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	done := start.Add(95 * time.Second)
	runs := []venue.Run{
		{
			ID: "0b7f8a2e-1111-2222-3333-444444444444", City: "New York", Type: venue.RunFull,
			Status: venue.StatusPartial, StartedAt: start, CompletedAt: &done,
			Stats:  &venue.Stats{RawTotal: 812, VenuesCreated: 14},
			Errors: []venue.RunError{{Kind: venue.ErrSourceUnavailable}},
		},
		{ID: "abc", City: "Austin", Type: venue.RunIncremental, Status: venue.StatusRunning, StartedAt: start},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "0b7f8a2e ")
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "812")
	assert.Contains(t, out, "2026-10-16 08:00")
	assert.Contains(t, out, "RUNNING")
}

func testCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	cat, err := config.ParseCatalog([]byte(`
cities:
  - name: New York
    bbox: {south: 40.47, west: -74.26, north: 40.92, east: -73.70}
  - name: Austin
    bbox: {south: 30.09, west: -97.94, north: 30.52, east: -97.56}
`))
	require.NoError(t, err)
	return cat
}

func TestSelectCities(t *testing.T) {
	cat := testCatalog(t)

	all, err := selectCities(cat, nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := selectCities(cat, []string{"austin"}, false)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "Austin", one[0].Name)

	_, err = selectCities(cat, nil, false)
	assert.Error(t, err)
	_, err = selectCities(cat, []string{"Austin"}, true)
	assert.Error(t, err)
	_, err = selectCities(cat, []string{"Gotham"}, false)
	assert.Error(t, err)
}

type fakeRunner struct {
	status map[string]venue.RunStatus
	errs   map[string]error
}

func (f fakeRunner) Run(_ context.Context, city venue.City, _ venue.RunType) (pipeline.State, error) {
	if err := f.errs[city.Name]; err != nil {
		return pipeline.State{}, err
	}
	return pipeline.State{
		City: city,
		Run:  &venue.Run{ID: "run-" + city.Name, Status: f.status[city.Name]},
	}, nil
}

func TestIngestCities(t *testing.T) {
	cities := testCatalog(t).Cities
	runner := fakeRunner{status: map[string]venue.RunStatus{
		"New York": venue.StatusSuccess,
		"Austin":   venue.StatusPartial,
	}}

	lines, err := ingestCities(context.Background(), runner, cities, venue.RunFull, 2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "New York: run run-New York SUCCESS"))
	assert.Contains(t, lines[1], "PARTIAL")
}

func TestIngestCities_FailuresDoNotStopOthers(t *testing.T) {
	cities := testCatalog(t).Cities
	runner := fakeRunner{
		status: map[string]venue.RunStatus{"Austin": venue.StatusFailed},
		errs:   map[string]error{"New York": errors.New("open run: connection refused")},
	}

	lines, err := ingestCities(context.Background(), runner, cities, venue.RunFull, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "New York")
	assert.Contains(t, err.Error(), "Austin")
	assert.Contains(t, lines[0], "connection refused")
	assert.Contains(t, lines[1], "FAILED")
}

func TestBuildRegistry(t *testing.T) {
	c := config.Config{}
	c.Sources.Overpass.URL = "https://overpass.example"
	c.Sources.FullCap = 500
	c.Sources.IncrementCap = 100
	c.Sources.Yelp.Key = "yelp-key"

	reg := buildRegistry(c, nil, resilience.NewBreakers(resilience.DefaultBreakerConfig()))
	assert.Equal(t, []string{
		sources.SourceOverpass, sources.SourceGoogle, sources.SourceYelp, sources.SourceEvents, sources.SourceSocial,
	}, reg.Names())

	enabled := map[string]bool{}
	for _, a := range reg.All() {
		enabled[a.Name()] = a.Capability().Enabled
	}
	assert.True(t, enabled[sources.SourceOverpass])
	assert.False(t, enabled[sources.SourceGoogle])
	assert.True(t, enabled[sources.SourceYelp])
	assert.False(t, enabled[sources.SourceEvents])
}

func TestBuildGeocoder(t *testing.T) {
	c := config.Config{}
	assert.Nil(t, buildGeocoder(c))

	c.Sources.Google.Key = "g-key"
	c.Sources.Google.GeocodeURL = "https://geocode.example"
	assert.NotNil(t, buildGeocoder(c))
}

func TestSourceLimits(t *testing.T) {
	var c config.SourcesConfig
	c.FullCap, c.IncrementCap, c.PageDelayMs, c.MaxRetries = 500, 100, 250, 3
	breakers := resilience.NewBreakers(resilience.DefaultBreakerConfig())
	l := sourceLimits(c, breakers)
	assert.Same(t, breakers, l.Breakers)
	assert.Equal(t, 250*time.Millisecond, l.PageDelay)
	assert.Equal(t, 100, l.Cap(venue.RunIncremental))
	assert.Equal(t, 3, l.MaxRetries)
}

func TestNeighborhoodLocator_NoShapefile(t *testing.T) {
	loc, err := newNeighborhoodLocator().Locate(context.Background(), venue.City{Name: "Austin"})
	require.NoError(t, err)
	assert.Nil(t, loc)
}

type fakeRuns struct {
	runs []venue.Run
	err  error
	city string
	lim  int
}

func (f *fakeRuns) List(_ context.Context, city string, limit int) ([]venue.Run, error) {
	f.city, f.lim = city, limit
	return f.runs, f.err
}

func (f *fakeRuns) Get(_ context.Context, id string) (*venue.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, runlog.ErrNotFound
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func serveRequest(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	h := newRouter(&fakeRuns{}, fakePinger{}, metrics.New("test"), []string{"*"})
	rec := serveRequest(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	h = newRouter(&fakeRuns{}, fakePinger{err: errors.New("dial tcp: refused")}, metrics.New("test"), []string{"*"})
	rec = serveRequest(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Runs(t *testing.T) {
	runs := &fakeRuns{runs: []venue.Run{{ID: "r-1", City: "Austin", Status: venue.StatusSuccess}}}
	h := newRouter(runs, fakePinger{}, metrics.New("test"), []string{"*"})

	rec := serveRequest(t, h, http.MethodGet, "/runs?city=Austin&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []venue.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "Austin", runs.city)
	assert.Equal(t, 5, runs.lim)

	rec = serveRequest(t, h, http.MethodGet, "/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_RunsError(t *testing.T) {
	h := newRouter(&fakeRuns{err: errors.New("boom")}, fakePinger{}, metrics.New("test"), []string{"*"})
	rec := serveRequest(t, h, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRouter_RunByID(t *testing.T) {
	runs := &fakeRuns{runs: []venue.Run{{ID: "r-1", City: "Austin", Status: venue.StatusPartial}}}
	h := newRouter(runs, fakePinger{}, metrics.New("test"), []string{"*"})

	rec := serveRequest(t, h, http.MethodGet, "/runs/r-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"PARTIAL"`)

	rec = serveRequest(t, h, http.MethodGet, "/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_MetricsAndCORS(t *testing.T) {
	h := newRouter(&fakeRuns{}, fakePinger{}, metrics.New("test"), []string{"https://dashboard.example"})

	_ = serveRequest(t, h, http.MethodGet, "/healthz", nil)
	rec := serveRequest(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/healthz",status="200"} 1`)

	rec = serveRequest(t, h, http.MethodGet, "/runs", map[string]string{"Origin": "https://dashboard.example"})
	assert.Equal(t, "https://dashboard.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
