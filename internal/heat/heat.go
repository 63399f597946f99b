// Package heat turns a venue's latest weekly signals into a single heat score.
package heat

import (
	"math"
	"sort"
	"time"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/geo"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/store"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Weights and caps of each component.
const (
	PointsPerEvent = 4.0
	MaxEvents      = 10.0
	SocialWeight   = 30.0
	RatingWeight   = 20.0
	RatingScale    = 5.0
	TrafficWeight  = 10.0
	TrafficCap     = 1000.0
)

// Window is the signal window the heat index reads.
const Window = venue.WindowWeekly

// Compute scores one venue. Missing signals contribute zero.
func Compute(s store.SignalSet) (float64, venue.HeatComponents) {
	c := venue.HeatComponents{
		Events:  clamp(s[venue.SignalEventActivity], 0, MaxEvents) * PointsPerEvent,
		Social:  clamp(s[venue.SignalSocialHeat], 0, 1) * SocialWeight,
		Rating:  clamp(s[venue.SignalRating], 0, RatingScale) / RatingScale * RatingWeight,
		Traffic: clamp(s[venue.SignalUserTraffic], 0, TrafficCap) / TrafficCap * TrafficWeight,
	}
	return c.Events + c.Social + c.Rating + c.Traffic, c
}

// Rows builds the heat row of every venue in ids. Venues without signals
// get a zero score so stale rows are overwritten.
func Rows(ids []string, signals map[string]store.SignalSet, now time.Time) []venue.HeatIndex {
	rows := make([]venue.HeatIndex, 0, len(ids))
	for _, id := range ids {
		score, comps := Compute(signals[id])
		rows = append(rows, venue.HeatIndex{
			VenueID:    id,
			Score:      score,
			Components: comps,
			ComputedAt: now.UTC(),
		})
	}
	return rows
}

// EventSignals counts upcoming event sightings per canonical venue, matching
// on normalized name or alias. When several venues share the matched name,
// as chain locations do, a located sighting goes to the nearest located
// venue and an unlocated one is credited to none of them. Every venue gets
// a weekly event_activity signal, zero included, so a quiet week replaces
// the previous count.
func EventSignals(venues []venue.Venue, sightings []venue.EventSighting, now time.Time) []venue.Signal {
	byName := make(map[string][]*venue.Venue)
	byAlias := make(map[string][]*venue.Venue)
	for i := range venues {
		v := &venues[i]
		if v.NormalizedName != "" {
			byName[v.NormalizedName] = append(byName[v.NormalizedName], v)
		}
		for _, a := range v.Aliases {
			key := normalize.Name(a)
			if key == "" || key == v.NormalizedName {
				continue
			}
			if held := byAlias[key]; len(held) > 0 && held[len(held)-1] == v {
				continue
			}
			byAlias[key] = append(byAlias[key], v)
		}
	}

	events := make(map[string]map[string]struct{})
	for _, s := range sightings {
		key := normalize.Name(s.VenueName)
		// Canonical names win over aliases.
		cands := byName[key]
		if len(cands) == 0 {
			cands = byAlias[key]
		}
		id, ok := creditedVenue(cands, s.Location)
		if !ok {
			continue
		}
		if events[id] == nil {
			events[id] = make(map[string]struct{})
		}
		events[id][s.EventID] = struct{}{}
	}

	ids := make([]string, 0, len(venues))
	for _, v := range venues {
		ids = append(ids, v.ID)
	}
	sort.Strings(ids)

	start := store.WindowStart(now, Window)
	signals := make([]venue.Signal, 0, len(ids))
	for _, id := range ids {
		signals = append(signals, venue.Signal{
			VenueID:     id,
			Type:        venue.SignalEventActivity,
			Window:      Window,
			WindowStart: start,
			Value:       float64(len(events[id])),
		})
	}
	return signals
}

// creditedVenue picks the venue a sighting at loc counts for among the
// venues sharing its name. Distance ties go to the lower ID.
func creditedVenue(cands []*venue.Venue, loc *venue.Point) (string, bool) {
	switch {
	case len(cands) == 0:
		return "", false
	case len(cands) == 1:
		return cands[0].ID, true
	case loc == nil:
		return "", false
	}

	var (
		best     string
		bestDist = math.Inf(1)
	)
	for _, v := range cands {
		if v.Location == nil {
			continue
		}
		d := geo.DistanceMeters(*loc, *v.Location)
		if d < bestDist || (d == bestDist && v.ID < best) {
			best, bestDist = v.ID, d
		}
	}
	return best, best != ""
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
