package sources

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// EventPlatforms lists the ticketing and listing domains whose events are
// trusted to name a real venue. Subdomains match.
var EventPlatforms = []string{
	"eventbrite.com", "eventbrite.co.uk", "eventbrite.ca", "eventbrite.com.au",
	"meetup.com",
	"ticketmaster.com", "ticketmaster.co.uk", "ticketmaster.ca", "livenation.com",
	"dice.fm",
	"ra.co", "residentadvisor.net",
	"songkick.com",
	"bandsintown.com",
	"seatgeek.com",
	"universe.com",
	"lu.ma",
	"posh.vip",
	"partiful.com",
}

// SightingReader reads upcoming events that name a venue.
type SightingReader interface {
	EventVenueSightings(ctx context.Context, city string) ([]venue.EventSighting, error)
}

// EventsAgent infers venues from the venue names on upcoming city events.
type EventsAgent struct {
	reader    SightingReader
	minEvents int
}

// NewEventsAgent creates an EventsAgent. A venue is emitted once it appears
// on at least minEvents events from a recognized platform.
func NewEventsAgent(r SightingReader, minEvents int) *EventsAgent {
	if minEvents < 1 {
		minEvents = 2
	}
	return &EventsAgent{reader: r, minEvents: minEvents}
}

// Name implements Agent.
func (a *EventsAgent) Name() string { return SourceEvents }

// Capability implements Agent.
func (a *EventsAgent) Capability() Capability {
	if a.reader == nil {
		return Disabled("events store not configured")
	}
	return Enabled()
}

// EventConfidence is the identity confidence for a venue seen on n
// recognized events: 0.6 at two, +0.05 per extra event, capped at 0.9.
func EventConfidence(n int) float64 {
	if n < 2 {
		n = 2
	}
	return math.Min(0.6+0.05*float64(n-2), 0.9)
}

// RecognizedPlatform reports whether rawURL is hosted on a known event platform.
func RecognizedPlatform(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, d := range EventPlatforms {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

type eventGroup struct {
	name      string
	sightings []venue.EventSighting
}

// Fetch implements Agent. The run type does not change the result: the
// events table is local and already bounded to upcoming events.
func (a *EventsAgent) Fetch(ctx context.Context, city venue.City, _ venue.RunType) ([]venue.RawVenue, error) {
	if a.reader == nil {
		return nil, eris.New("sources: events store not configured")
	}
	log := zap.L().With(zap.String("component", "sources"), zap.String("source", SourceEvents), zap.String("city", city.Name))

	sightings, err := a.reader.EventVenueSightings(ctx, city.Name)
	if err != nil {
		return nil, eris.Wrap(err, "sources: read event sightings")
	}

	groups := make(map[string]*eventGroup)
	var keys []string
	for _, s := range sightings {
		if !RecognizedPlatform(s.SourceURL) {
			continue
		}
		key := normalize.Name(s.VenueName)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &eventGroup{name: strings.TrimSpace(s.VenueName)}
			groups[key] = g
			keys = append(keys, key)
		}
		g.sightings = append(g.sightings, s)
	}
	sort.Strings(keys)

	var out []venue.RawVenue
	for _, key := range keys {
		g := groups[key]
		if len(g.sightings) < a.minEvents {
			continue
		}
		out = append(out, eventRecord(key, g, city.Name))
	}

	log.Info("events fetch complete",
		zap.Int("sightings", len(sightings)),
		zap.Int("venue_names", len(keys)),
		zap.Int("records", len(out)),
	)
	return out, nil
}

func eventRecord(key string, g *eventGroup, city string) venue.RawVenue {
	ids := make([]string, 0, len(g.sightings))
	rv := venue.RawVenue{
		Source:     SourceEvents,
		ExternalID: strings.ToLower(city) + ":" + key,
		SourceURL:  g.sightings[0].SourceURL,
		Confidence: EventConfidence(len(g.sightings)),
		Name:       g.name,
		City:       city,
	}
	for _, s := range g.sightings {
		ids = append(ids, s.EventID)
		if rv.Address == "" {
			rv.Address = s.Address
		}
		if rv.Location == nil && s.Location != nil {
			loc := *s.Location
			rv.Location = &loc
		}
	}
	rv.Payload, _ = json.Marshal(map[string]any{"event_ids": ids, "events": len(ids)})
	return rv
}
