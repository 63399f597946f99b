package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/geo"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/graph"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/heat"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/match"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/quality"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/sources"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/store"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/geocode"
)

// Stage names as recorded on run errors.
const (
	StageCollect   = "collect"
	StageGeocode   = "geocode"
	StageNormalize = "normalize"
	StageMatch     = "match"
	StageWrite     = "write"
	StageHeat      = "heat"
	StageQuality   = "quality"
)

// Collect runs every registered agent in order. A disabled agent records
// exactly one source_unavailable error and contributes nothing.
type Collect struct {
	Sources *sources.Registry
}

// Name implements Stage.
func (Collect) Name() string { return StageCollect }

// Run implements Stage.
func (c Collect) Run(ctx context.Context, s State) (State, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("city", s.City.Name))
	if s.Stats.SourceCounts == nil {
		s.Stats.SourceCounts = make(map[string]int)
	}

	for _, agent := range c.Sources.All() {
		name := agent.Name()
		s.Stats.SourceCounts[name] = 0

		capability := agent.Capability()
		if !capability.Enabled {
			log.Warn("source disabled", zap.String("source", name), zap.String("reason", capability.Reason))
			s.addError(StageCollect, name, venue.ErrSourceUnavailable, capability.Reason, nil)
			continue
		}

		start := time.Now()
		raws, err := agent.Fetch(ctx, s.City, s.RunType)
		if err != nil {
			log.Warn("source unavailable", zap.String("source", name), zap.Error(err))
			s.addError(StageCollect, name, venue.ErrSourceUnavailable, err.Error(), nil)
			continue
		}

		s.Stats.SourceCounts[name] = len(raws)
		s.Stats.RawTotal += len(raws)
		s.Raw = append(s.Raw, raws...)
		log.Info("source fetched",
			zap.String("source", name),
			zap.Int("records", len(raws)),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return s, nil
}

// DefaultMaxGeocodes bounds address lookups per run.
const DefaultMaxGeocodes = 200

// GeocodeSource names the geocoder on run errors and its breaker.
const GeocodeSource = "geocode"

// Geocode fills coordinates for raw records that carry an address but no
// usable point. Only precise results inside the city's box are kept. A nil
// client skips the stage. Each lookup is retried per Retry; once Breaker
// opens the remaining lookups are skipped.
type Geocode struct {
	Client     geocode.Client
	MaxLookups int
	Retry      resilience.RetryConfig
	Breaker    *resilience.Breaker
}

// Name implements Stage.
func (Geocode) Name() string { return StageGeocode }

// Run implements Stage.
func (g Geocode) Run(ctx context.Context, s State) (State, error) {
	if g.Client == nil {
		return s, nil
	}
	log := zap.L().With(zap.String("component", "geocode"), zap.String("city", s.City.Name))

	limit := g.MaxLookups
	if limit <= 0 {
		limit = DefaultMaxGeocodes
	}
	retry := g.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(GeocodeSource, "geocode")
	}
	b := s.City.BBox
	bounds := &geocode.Bounds{South: b.South, West: b.West, North: b.North, East: b.East}

	raws := make([]venue.RawVenue, len(s.Raw))
	copy(raws, s.Raw)

	var (
		lookups, failures int
		firstErr          error
	)
	for i := range raws {
		r := &raws[i]
		if geo.ValidPoint(r.Location) || strings.TrimSpace(r.Address) == "" {
			continue
		}
		if lookups >= limit {
			log.Info("geocode lookup cap reached", zap.Int("cap", limit))
			break
		}
		lookups++

		req := geocode.Request{Address: r.Address + ", " + s.City.Name, Bounds: bounds}
		res, err := resilience.Execute(ctx, g.Breaker, func(ctx context.Context) (*geocode.Result, error) {
			return resilience.DoVal(ctx, retry, func(ctx context.Context) (*geocode.Result, error) {
				return g.Client.Geocode(ctx, req)
			})
		})
		if err != nil {
			failures++
			if firstErr == nil {
				firstErr = err
			}
			if errors.Is(err, resilience.ErrBreakerOpen) {
				log.Warn("geocoder circuit open, skipping remaining lookups", zap.Error(err))
				break
			}
			log.Debug("geocode failed", zap.String("address", r.Address), zap.Error(err))
			continue
		}
		if !res.Precise() {
			continue
		}
		p := venue.Point{Lat: res.Latitude, Lon: res.Longitude}
		if !b.Contains(p) {
			continue
		}
		r.Location = &p
		s.Stats.Geocoded++
	}
	s.Raw = raws

	if firstErr != nil {
		log.Warn("geocoding incomplete", zap.Int("failed", failures), zap.Error(firstErr))
		s.addError(StageGeocode, GeocodeSource, venue.ErrSourceUnavailable, firstErr.Error(), map[string]any{"failed": failures})
	}
	return s, nil
}

// LocatorFunc resolves the neighborhood locator of a city. A nil locator
// disables neighborhood backfill.
type LocatorFunc func(ctx context.Context, city venue.City) (normalize.Locator, error)

// Normalize merges raw records into candidates.
type Normalize struct {
	Locate LocatorFunc
}

// Name implements Stage.
func (Normalize) Name() string { return StageNormalize }

// Run implements Stage.
func (n Normalize) Run(ctx context.Context, s State) (State, error) {
	var locator normalize.Locator
	if n.Locate != nil {
		l, err := n.Locate(ctx, s.City)
		if err != nil {
			zap.L().Warn("neighborhood boundaries unavailable",
				zap.String("city", s.City.Name), zap.Error(err))
			s.Warnings = append(s.Warnings, "neighborhood boundaries unavailable: "+err.Error())
		} else {
			locator = l
		}
	}

	res := normalize.New(s.City, locator).Normalize(s.Raw)
	s.Candidates = res.Candidates
	s.Stats.SkippedRecords += res.Skipped
	s.Stats.NormalizedTotal = len(res.Candidates)
	s.Stats.CoordinateCoverage = res.CoordinateCoverage
	s.Stats.CategoryCoverage = res.CategoryCoverage
	s.Stats.WebsiteCoverage = res.WebsiteCoverage
	return s, nil
}

// Match resolves candidates against the city's active venues.
type Match struct {
	Store     store.Store
	Threshold float64
}

// Name implements Stage.
func (Match) Name() string { return StageMatch }

// Run implements Stage. Failing to load existing venues breaks the run:
// matching against nothing would mint duplicates.
func (m Match) Run(ctx context.Context, s State) (State, error) {
	existing, err := m.Store.ActiveVenues(ctx, s.City.Name)
	if err != nil {
		return s, eris.Wrap(err, "pipeline: load active venues")
	}

	res := match.New(existing, m.Threshold).Match(s.Candidates)
	s.Existing = existing
	s.Matches = res.Matches
	s.Stats.ExistingVenues = len(existing)
	s.Stats.Matched = res.Matched
	s.Stats.New = res.New
	s.Stats.AmbiguousMatches = res.Ambiguous
	return s, nil
}

// Write persists every match, mirrors the stored row into the graph and
// records rating signals. Per-venue failures are recorded and the batch continues.
type Write struct {
	Store store.Store
	Graph graph.Writer
}

// Name implements Stage.
func (Write) Name() string { return StageWrite }

// Run implements Stage.
func (w Write) Run(ctx context.Context, s State) (State, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("city", s.City.Name))

	g := w.Graph
	if g == nil {
		g = graph.Nop{}
	}

	var (
		ratings  []venue.Signal
		graphErr error
		weekOf   = store.WindowStart(s.Now, venue.WindowWeekly)
	)
	for _, m := range s.Matches {
		res, err := w.Store.WriteMatch(ctx, m)
		if err != nil {
			s.Stats.WriteErrors++
			log.Warn("venue write failed", zap.String("name", m.Candidate.Name), zap.Error(err))
			s.addError(StageWrite, "", venue.ErrPersistence, err.Error(), map[string]any{
				"name":     m.Candidate.Name,
				"geo_cell": m.Candidate.GeoCell,
			})
			continue
		}

		switch {
		case res.Created:
			s.Stats.VenuesCreated++
		case res.Conflict:
			s.Stats.ConflictMatches++
			s.Stats.VenuesUpdated++
		default:
			s.Stats.VenuesUpdated++
		}
		s.Stats.SourcesAdded += res.SourcesAdded
		s.Stats.AliasesAdded += res.AliasesAdded
		s.VenueIDs = append(s.VenueIDs, res.VenueID)

		if m.Candidate.Rating != nil {
			ratings = append(ratings, venue.Signal{
				VenueID:     res.VenueID,
				Type:        venue.SignalRating,
				Window:      venue.WindowWeekly,
				WindowStart: weekOf,
				Value:       *m.Candidate.Rating,
			})
		}

		if !g.Enabled() {
			continue
		}
		if err := g.MirrorVenue(ctx, graph.NodeFromVenue(res.Venue)); err != nil {
			s.Stats.GraphErrors++
			if graphErr == nil {
				graphErr = err
			}
			log.Debug("graph mirror failed", zap.String("venue_id", res.VenueID), zap.Error(err))
			continue
		}
		s.Stats.GraphMirrored++
	}

	if graphErr != nil {
		log.Warn("graph mirror incomplete", zap.Int("failed", s.Stats.GraphErrors), zap.Error(graphErr))
		s.addError(StageWrite, "", venue.ErrGraph, graphErr.Error(), map[string]any{"failed": s.Stats.GraphErrors})
	}

	if len(ratings) > 0 {
		if _, err := w.Store.UpsertSignals(ctx, ratings); err != nil {
			log.Warn("rating signals failed", zap.Error(err))
			s.addError(StageWrite, "", venue.ErrPersistence, err.Error(), map[string]any{"signal": string(venue.SignalRating)})
		}
	}
	return s, nil
}

// Heat refreshes event activity signals and recomputes the heat index of
// every active venue in the city.
type Heat struct {
	Store store.Store
}

// Name implements Stage.
func (Heat) Name() string { return StageHeat }

// Run implements Stage.
func (h Heat) Run(ctx context.Context, s State) (State, error) {
	active, err := h.Store.ActiveVenues(ctx, s.City.Name)
	if err != nil {
		s.addError(StageHeat, "", venue.ErrPersistence, err.Error(), nil)
		return s, nil
	}

	sightings, err := h.Store.EventVenueSightings(ctx, s.City.Name)
	if err != nil {
		s.addError(StageHeat, sources.SourceEvents, venue.ErrPersistence, err.Error(), nil)
	} else {
		events := heat.EventSignals(active, sightings, s.Now)
		if _, err := h.Store.UpsertSignals(ctx, events); err != nil {
			s.addError(StageHeat, "", venue.ErrPersistence, err.Error(), map[string]any{"signal": string(venue.SignalEventActivity)})
		} else {
			s.Stats.EventSignals = len(events)
		}
	}

	latest, err := h.Store.LatestSignals(ctx, s.City.Name, heat.Window)
	if err != nil {
		s.addError(StageHeat, "", venue.ErrPersistence, err.Error(), nil)
		return s, nil
	}

	ids := make([]string, 0, len(active))
	for _, v := range active {
		ids = append(ids, v.ID)
	}
	n, err := h.Store.UpsertHeat(ctx, heat.Rows(ids, latest, s.Now))
	if err != nil {
		s.addError(StageHeat, "", venue.ErrPersistence, err.Error(), nil)
		return s, nil
	}
	s.Stats.HeatComputed = int(n)
	return s, nil
}

// PreviousStats returns the stats of the city's last successful run, or nil.
type PreviousStats interface {
	LastSuccessful(ctx context.Context, city string) (*venue.Stats, error)
}

// Quality compares this run with the previous successful one.
type Quality struct {
	Runs PreviousStats
}

// Name implements Stage.
func (Quality) Name() string { return StageQuality }

// Run implements Stage.
func (q Quality) Run(ctx context.Context, s State) (State, error) {
	log := zap.L().With(zap.String("component", "quality"), zap.String("city", s.City.Name))

	prev, err := q.Runs.LastSuccessful(ctx, s.City.Name)
	if err != nil {
		log.Warn("previous run unavailable, skipping comparison", zap.Error(err))
		s.Warnings = append(s.Warnings, fmt.Sprintf("previous run unavailable: %v", err))
		prev = nil
	}

	report := quality.Check(s.Stats, prev)
	for _, a := range report.Anomalies {
		log.Warn("quality anomaly", zap.String("source", a.Source), zap.String("message", a.Message))
	}
	for _, w := range report.Warnings {
		log.Warn("quality warning", zap.String("warning", w))
	}
	s.Errors = append(s.Errors, report.Anomalies...)
	s.Warnings = append(s.Warnings, report.Warnings...)
	s.Stats.Anomalies = len(report.Anomalies)
	s.Stats.Warnings = len(s.Warnings)
	return s, nil
}
