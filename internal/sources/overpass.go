package sources

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/overpass"
)

const overpassConfidence = 0.8

var (
	osmAmenity = []string{
		"bar", "pub", "biergarten", "nightclub", "theatre", "cinema", "arts_centre",
		"community_centre", "social_centre", "music_venue", "events_venue", "cafe",
		"restaurant", "library", "concert_hall", "stripclub",
	}
	osmLeisure = []string{
		"park", "garden", "dance", "sports_centre", "stadium", "bowling_alley",
		"fitness_centre", "ice_rink", "escape_game", "amusement_arcade",
	}
	osmTourism = []string{"gallery", "museum", "attraction", "zoo", "aquarium"}

	osmAliasKeys = []string{"alt_name", "old_name", "short_name", "official_name"}
)

// OverpassAgent reads named venues from OpenStreetMap.
type OverpassAgent struct {
	client      overpass.Client
	limits      Limits
	timeoutSecs int
}

// NewOverpassAgent creates an OverpassAgent. timeoutSecs is passed to the
// interpreter as the server-side query timeout.
func NewOverpassAgent(c overpass.Client, limits Limits, timeoutSecs int) *OverpassAgent {
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}
	return &OverpassAgent{client: c, limits: limits, timeoutSecs: timeoutSecs}
}

// Name implements Agent.
func (a *OverpassAgent) Name() string { return SourceOverpass }

// Capability implements Agent. Overpass needs no credentials.
func (a *OverpassAgent) Capability() Capability {
	if a.client == nil {
		return Disabled("overpass client not configured")
	}
	return Enabled()
}

// Fetch implements Agent.
func (a *OverpassAgent) Fetch(ctx context.Context, city venue.City, runType venue.RunType) ([]venue.RawVenue, error) {
	log := zap.L().With(zap.String("component", "sources"), zap.String("source", SourceOverpass), zap.String("city", city.Name))

	limit := a.limits.Cap(runType)
	ql := overpass.VenueQuery(overpass.BBox{
		South: city.BBox.South, West: city.BBox.West,
		North: city.BBox.North, East: city.BBox.East,
	}, osmAmenity, osmLeisure, osmTourism, a.timeoutSecs, limit)

	resp, err := withRetry(ctx, a.limits, SourceOverpass, "query", func(ctx context.Context) (*overpass.Response, error) {
		return a.client.Query(ctx, ql)
	})
	if err != nil {
		return nil, eris.Wrap(err, "sources: overpass query")
	}

	out := make([]venue.RawVenue, 0, len(resp.Elements))
	skipped := 0
	for _, el := range resp.Elements {
		if len(out) >= limit {
			break
		}
		rv, ok := overpassRecord(el, city.Name)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rv)
	}

	log.Info("overpass fetch complete",
		zap.Int("elements", len(resp.Elements)),
		zap.Int("records", len(out)),
		zap.Int("skipped", skipped),
	)
	return out, nil
}

func overpassRecord(el overpass.Element, city string) (venue.RawVenue, bool) {
	name := strings.TrimSpace(el.Tags["name"])
	if name == "" {
		return venue.RawVenue{}, false
	}

	payload, err := json.Marshal(el)
	if err != nil {
		return venue.RawVenue{}, false
	}

	rv := venue.RawVenue{
		Source:       SourceOverpass,
		ExternalID:   el.Key(),
		SourceURL:    el.URL(),
		Payload:      payload,
		Confidence:   overpassConfidence,
		Name:         name,
		City:         city,
		Address:      osmAddress(el.Tags),
		Neighborhood: firstTag(el.Tags, "addr:suburb", "addr:neighbourhood", "addr:quarter"),
		Website:      firstTag(el.Tags, "website", "contact:website", "url"),
		Phone:        firstTag(el.Tags, "phone", "contact:phone"),
		Description:  el.Tags["description"],
		Hours:        el.Tags["opening_hours"],
		ImageURL:     el.Tags["image"],
	}

	if lat, lon, ok := el.Coordinates(); ok {
		rv.Location = &venue.Point{Lat: lat, Lon: lon}
	}

	for _, k := range osmAliasKeys {
		for _, v := range strings.Split(el.Tags[k], ";") {
			if v = strings.TrimSpace(v); v != "" {
				rv.Aliases = append(rv.Aliases, v)
			}
		}
	}

	for _, k := range []string{"amenity", "leisure", "tourism", "club", "theatre:genre", "cuisine"} {
		for _, v := range strings.Split(el.Tags[k], ";") {
			if v = strings.TrimSpace(v); v != "" {
				rv.Tags = append(rv.Tags, v)
			}
		}
	}

	if c, err := strconv.Atoi(strings.TrimSpace(el.Tags["capacity"])); err == nil && c > 0 {
		rv.Capacity = intPtr(c)
	}

	switch el.Tags["wheelchair"] {
	case "yes":
		rv.Accessibility = map[string]bool{"wheelchair": true}
	case "limited":
		rv.Accessibility = map[string]bool{"wheelchair_limited": true}
	}

	if el.Tags["disused:amenity"] != "" || el.Tags["opening_hours"] == "closed" {
		rv.Closed = true
	}

	return rv, true
}

func osmAddress(tags map[string]string) string {
	if full := tags["addr:full"]; full != "" {
		return full
	}
	street := strings.TrimSpace(tags["addr:housenumber"] + " " + tags["addr:street"])
	var parts []string
	for _, p := range []string{street, tags["addr:city"], tags["addr:postcode"]} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags[k]); v != "" {
			return v
		}
	}
	return ""
}
