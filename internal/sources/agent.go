// Package sources holds the source agents that fetch raw venue sightings for
// a city: OpenStreetMap, Google Places, Yelp, internal event listings and a
// social signal placeholder.
package sources

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Source names, also used as venue_sources.source.
const (
	SourceOverpass = "overpass"
	SourceGoogle   = "google_places"
	SourceYelp     = "yelp"
	SourceEvents   = "events"
	SourceSocial   = "social"
)

// Agent fetches raw venue records for one city.
type Agent interface {
	// Name returns the source identifier stored with every record.
	Name() string

	// Capability reports whether the agent can run, and why not.
	Capability() Capability

	// Fetch returns the raw records for the city. Record-level parse
	// problems are skipped inside the agent; an error means the source as a
	// whole was unavailable.
	Fetch(ctx context.Context, city venue.City, runType venue.RunType) ([]venue.RawVenue, error)
}

// Capability describes whether an agent is usable in this process.
type Capability struct {
	Enabled bool
	Reason  string
}

// Enabled is the capability of an agent with everything it needs.
func Enabled() Capability { return Capability{Enabled: true} }

// Disabled returns a capability carrying the reason the agent cannot run.
func Disabled(reason string) Capability { return Capability{Reason: reason} }

// Limits bounds how much an agent asks of its upstream. Breakers, when set,
// is shared across agents and cities so a failing upstream is skipped
// rather than retried page after page.
type Limits struct {
	FullCap        int
	IncrementalCap int
	PageDelay      time.Duration
	MaxRetries     int
	Breakers       *resilience.Breakers
}

// DefaultLimits returns the caps used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		FullCap:        500,
		IncrementalCap: 100,
		PageDelay:      200 * time.Millisecond,
		MaxRetries:     2,
	}
}

// Cap returns the hard result cap for a run type.
func (l Limits) Cap(rt venue.RunType) int {
	if rt == venue.RunIncremental {
		return l.IncrementalCap
	}
	return l.FullCap
}

// Limiter returns a limiter spacing page requests by PageDelay.
func (l Limits) Limiter() *rate.Limiter {
	if l.PageDelay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(l.PageDelay), 1)
}

// Retry returns the retry policy for one page request.
func (l Limits) Retry(source, op string) resilience.RetryConfig {
	cfg := resilience.SourceRetryConfig(l.MaxRetries)
	cfg.OnRetry = resilience.RetryLogger(source, op)
	return cfg
}

// Registry holds agents in a fixed run order.
type Registry struct {
	agents map[string]Agent
	order  []string
}

// NewRegistry creates a registry from the given agents, preserving order.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds an agent. Registering a name twice replaces the agent but
// keeps its original position.
func (r *Registry) Register(a Agent) {
	name := a.Name()
	if _, ok := r.agents[name]; !ok {
		r.order = append(r.order, name)
	}
	r.agents[name] = a
}

// Get returns an agent by name.
func (r *Registry) Get(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, eris.Errorf("sources: unknown agent %q", name)
	}
	return a, nil
}

// All returns all agents in registration order.
func (r *Registry) All() []Agent {
	out := make([]Agent, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.agents[name])
	}
	return out
}

// Names returns the agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// radiusMeters returns the radius of the circle around the bbox center that
// covers the bbox corners.
func radiusMeters(b venue.BoundingBox) int {
	c := b.Center()
	latM := (b.North - b.South) / 2 * 111320
	lonM := (b.East - b.West) / 2 * 111320 * math.Cos(c.Lat*math.Pi/180)
	return int(math.Ceil(math.Hypot(latM, lonM)))
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

// withRetry retries one page request with the limits' retry policy behind
// the source's breaker. A page that still fails after its retries counts as
// one breaker failure.
func withRetry[T any](ctx context.Context, l Limits, source, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.Execute(ctx, l.Breakers.Get(source), func(ctx context.Context) (T, error) {
		return resilience.DoVal(ctx, l.Retry(source, op), fn)
	})
}
