package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/graph"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/sources"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/store"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/geocode"
)

// memStore is an in-memory store.Store with the same natural-key and
// provenance uniqueness rules as the Postgres schema.
type memStore struct {
	mu        sync.Mutex
	venues    map[string]*venue.Venue
	byKey     map[string]string
	sources   map[string]string
	signals   []venue.Signal
	heat      map[string]venue.HeatIndex
	sightings []venue.EventSighting
	nextID    int

	failNames   map[string]bool
	failSignals bool
}

var _ store.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		venues:  make(map[string]*venue.Venue),
		byKey:   make(map[string]string),
		sources: make(map[string]string),
		heat:    make(map[string]venue.HeatIndex),
	}
}

func naturalKey(city, name, cell string) string { return city + "|" + name + "|" + cell }

func (m *memStore) seed(v venue.Venue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Active = true
	m.venues[v.ID] = &v
	m.byKey[naturalKey(v.City, v.NormalizedName, v.GeoCell)] = v.ID
}

func (m *memStore) ActiveVenues(_ context.Context, city string) ([]venue.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []venue.Venue
	for _, v := range m.venues {
		if v.City == city && v.Active {
			cp := *v
			cp.Aliases = append([]string(nil), v.Aliases...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) WriteMatch(_ context.Context, mt venue.Match) (store.WriteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := mt.Candidate
	if m.failNames[c.Name] {
		return store.WriteResult{}, errors.New("deadlock detected")
	}

	var res store.WriteResult
	if mt.IsNew() {
		key := naturalKey(c.City, c.NormalizedName, c.GeoCell)
		if id, ok := m.byKey[key]; ok {
			res.VenueID, res.Conflict = id, true
		} else {
			m.nextID++
			id := fmt.Sprintf("v-%03d", m.nextID)
			m.venues[id] = &venue.Venue{
				ID: id, City: c.City, Name: c.Name, NormalizedName: c.NormalizedName,
				Location: c.Location, GeoCell: c.GeoCell, Neighborhood: c.Neighborhood,
				Category: c.Category, Active: c.Active,
			}
			m.byKey[key] = id
			res.VenueID, res.Created = id, true
		}
	} else {
		if _, ok := m.venues[mt.VenueID]; !ok {
			return res, fmt.Errorf("venue %s not found", mt.VenueID)
		}
		res.VenueID = mt.VenueID
	}

	v := m.venues[res.VenueID]
	if !res.Created {
		fillGaps(v, c)
	}
	res.Venue = venue.Venue{
		ID: v.ID, City: v.City, Name: v.Name, Neighborhood: v.Neighborhood,
		Category: v.Category, Location: v.Location, Active: v.Active,
	}
	for _, src := range c.Sources {
		k := src.Source + "|" + src.ExternalID
		if _, ok := m.sources[k]; ok {
			continue
		}
		m.sources[k] = res.VenueID
		res.SourcesAdded++
	}
	for _, a := range c.Aliases {
		known := normalize.Name(a) == v.NormalizedName
		for _, have := range v.Aliases {
			known = known || normalize.Name(have) == normalize.Name(a)
		}
		if !known {
			v.Aliases = append(v.Aliases, a)
			res.AliasesAdded++
		}
	}
	return res, nil
}

// fillGaps applies the matched-update rules: populated fields are kept and a
// closed report deactivates.
func fillGaps(v *venue.Venue, c venue.Candidate) {
	if v.Location == nil {
		v.Location = c.Location
	}
	if v.Neighborhood == "" {
		v.Neighborhood = c.Neighborhood
	}
	if v.Category == venue.CategoryOther {
		v.Category = c.Category
	}
	v.Active = v.Active && c.Active
}

func (m *memStore) UpsertSignals(_ context.Context, signals []venue.Signal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSignals {
		return 0, errors.New("copy failed")
	}
	for _, s := range signals {
		replaced := false
		for i, have := range m.signals {
			if have.VenueID == s.VenueID && have.Type == s.Type && have.Window == s.Window && have.WindowStart.Equal(s.WindowStart) {
				m.signals[i] = s
				replaced = true
			}
		}
		if !replaced {
			m.signals = append(m.signals, s)
		}
	}
	return int64(len(signals)), nil
}

func (m *memStore) LatestSignals(_ context.Context, city string, window venue.Window) (map[string]store.SignalSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]store.SignalSet)
	for _, s := range m.signals {
		v, ok := m.venues[s.VenueID]
		if !ok || v.City != city || s.Window != window {
			continue
		}
		if out[s.VenueID] == nil {
			out[s.VenueID] = store.SignalSet{}
		}
		out[s.VenueID][s.Type] = s.Value
	}
	return out, nil
}

func (m *memStore) UpsertHeat(_ context.Context, rows []venue.HeatIndex) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.heat[r.VenueID] = r
	}
	return int64(len(rows)), nil
}

func (m *memStore) EventVenueSightings(context.Context, string) ([]venue.EventSighting, error) {
	return m.sightings, nil
}

func (m *memStore) sourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// memRuns records runs in memory. Finished SUCCESS and PARTIAL runs become
// the comparison baseline.
type memRuns struct {
	startErr error
	started  int
	finished []venue.Run
	last     *venue.Stats
}

func (r *memRuns) Start(_ context.Context, city string, rt venue.RunType) (*venue.Run, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	r.started++
	return &venue.Run{ID: fmt.Sprintf("run-%d", r.started), City: city, Type: rt, Status: venue.StatusRunning}, nil
}

func (r *memRuns) Finish(_ context.Context, run *venue.Run) error {
	r.finished = append(r.finished, *run)
	if run.Status == venue.StatusSuccess || run.Status == venue.StatusPartial {
		r.last = run.Stats
	}
	return nil
}

func (r *memRuns) LastSuccessful(context.Context, string) (*venue.Stats, error) {
	return r.last, nil
}

// staticAgent returns fixed records.
type staticAgent struct {
	name string
	raws []venue.RawVenue
	err  error
}

var _ sources.Agent = staticAgent{}

func (a staticAgent) Name() string                      { return a.name }
func (a staticAgent) Capability() sources.Capability    { return sources.Enabled() }
func (a staticAgent) Fetch(context.Context, venue.City, venue.RunType) ([]venue.RawVenue, error) {
	return a.raws, a.err
}

// failingGraph is an enabled graph writer that always fails.
type failingGraph struct{ calls int }

var _ graph.Writer = (*failingGraph)(nil)

func (g *failingGraph) Enabled() bool { return true }
func (g *failingGraph) MirrorVenue(context.Context, graph.VenueNode) error {
	g.calls++
	return errors.New("neo4j: ServiceUnavailable")
}
func (g *failingGraph) Close(context.Context) error { return nil }

// recordingGraph is an enabled graph writer that keeps every node it is
// given.
type recordingGraph struct {
	nodes map[string]graph.VenueNode
}

var _ graph.Writer = (*recordingGraph)(nil)

func (g *recordingGraph) Enabled() bool { return true }
func (g *recordingGraph) MirrorVenue(_ context.Context, n graph.VenueNode) error {
	if g.nodes == nil {
		g.nodes = make(map[string]graph.VenueNode)
	}
	g.nodes[n.ID] = n
	return nil
}
func (g *recordingGraph) Close(context.Context) error { return nil }

// panicStage always panics.
type panicStage struct{}

func (panicStage) Name() string { return "explode" }
func (panicStage) Run(context.Context, State) (State, error) {
	panic("boom")
}

// fakeGeocoder returns queued errors first, then err, then results by address.
type fakeGeocoder struct {
	results map[string]*geocode.Result
	queued  []error
	err     error
	calls   []geocode.Request
}

func (g *fakeGeocoder) Geocode(_ context.Context, req geocode.Request) (*geocode.Result, error) {
	g.calls = append(g.calls, req)
	if len(g.queued) > 0 {
		err := g.queued[0]
		g.queued = g.queued[1:]
		return nil, err
	}
	if g.err != nil {
		return nil, g.err
	}
	if r, ok := g.results[req.Address]; ok {
		return r, nil
	}
	return &geocode.Result{}, nil
}
