package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/config"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/db"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/geo"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/graph"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/sources"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/geocode"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/google"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/overpass"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/yelp"
)

// openPool connects to Postgres with the configured pool size.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	return db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
}

// openGraph connects the graph mirror. An unreachable server degrades to
// the no-op writer.
func openGraph(ctx context.Context, c config.Neo4jConfig) graph.Writer {
	w, err := graph.Open(ctx, graph.Config{
		URI:      c.URI,
		Username: c.Username,
		Password: c.Password,
		Database: c.Database,
		MaxPool:  c.MaxPool,
	})
	if err != nil {
		zap.L().Warn("graph mirror unavailable, continuing without it", zap.Error(err))
	}
	if !w.Enabled() {
		zap.L().Info("graph mirror disabled")
	}
	return w
}

// sourceLimits converts the sources config into agent limits.
func sourceLimits(c config.SourcesConfig, breakers *resilience.Breakers) sources.Limits {
	return sources.Limits{
		Breakers:       breakers,
		FullCap:        c.FullCap,
		IncrementalCap: c.IncrementCap,
		PageDelay:      time.Duration(c.PageDelayMs) * time.Millisecond,
		MaxRetries:     c.MaxRetries,
	}
}

// buildGeocoder returns an address geocoder sharing the Google key, or nil
// when no key is configured.
func buildGeocoder(c config.Config) geocode.Client {
	if c.Sources.Google.Key == "" {
		return nil
	}
	httpClient := &http.Client{Timeout: time.Duration(c.Sources.TimeoutSecs) * time.Second}
	return geocode.NewClient(c.Sources.Google.Key,
		geocode.WithBaseURL(c.Sources.Google.GeocodeURL), geocode.WithHTTPClient(httpClient))
}

// buildRegistry registers every agent in collection order. Agents without
// credentials are registered anyway and report themselves disabled.
func buildRegistry(c config.Config, events sources.SightingReader, breakers *resilience.Breakers) *sources.Registry {
	limits := sourceLimits(c.Sources, breakers)
	httpClient := &http.Client{Timeout: time.Duration(c.Sources.TimeoutSecs) * time.Second}

	opClient := overpass.NewClient(overpass.WithURL(c.Sources.Overpass.URL))

	var googleClient google.Client
	if c.Sources.Google.Key != "" {
		googleClient = google.NewClient(c.Sources.Google.Key,
			google.WithBaseURL(c.Sources.Google.BaseURL), google.WithHTTPClient(httpClient))
	}
	var yelpClient yelp.Client
	if c.Sources.Yelp.Key != "" {
		yelpClient = yelp.NewClient(c.Sources.Yelp.Key,
			yelp.WithBaseURL(c.Sources.Yelp.BaseURL), yelp.WithHTTPClient(httpClient))
	}

	return sources.NewRegistry(
		sources.NewOverpassAgent(opClient, limits, c.Sources.TimeoutSecs),
		sources.NewGoogleAgent(googleClient, c.Sources.Google.Key, limits),
		sources.NewYelpAgent(yelpClient, c.Sources.Yelp.Key, limits),
		sources.NewEventsAgent(events, c.Pipeline.MinEventsForVenue),
		sources.NewSocialAgent(),
	)
}

// neighborhoodLocator loads and caches each city's neighborhood shapefile.
type neighborhoodLocator struct {
	client  *http.Client
	tempDir string

	mu    sync.Mutex
	cache map[string]*geo.Neighborhoods
}

func newNeighborhoodLocator() *neighborhoodLocator {
	return &neighborhoodLocator{
		client:  &http.Client{Timeout: 2 * time.Minute},
		tempDir: os.TempDir(),
		cache:   make(map[string]*geo.Neighborhoods),
	}
}

// Locate implements pipeline.LocatorFunc. Cities without a shapefile get
// no locator.
func (l *neighborhoodLocator) Locate(ctx context.Context, city venue.City) (normalize.Locator, error) {
	if city.NeighborhoodShapefile == "" {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if n, ok := l.cache[city.Name]; ok {
		return n, nil
	}

	field := city.NeighborhoodField
	if field == "" {
		field = "name"
	}
	n, err := geo.LoadNeighborhoods(ctx, l.client, city.NeighborhoodShapefile, field, l.tempDir)
	if err != nil {
		return nil, err
	}
	l.cache[city.Name] = n
	return n, nil
}
