package sources

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/yelp"
)

const yelpConfidence = 0.85

var yelpCategories = []string{
	"bars", "danceclubs", "musicvenues", "jazzandblues", "comedyclubs",
	"theater", "galleries", "museums", "movietheaters", "parks", "culturalcenter",
}

// YelpAgent searches Yelp Fusion around the city center.
type YelpAgent struct {
	client yelp.Client
	apiKey string
	limits Limits
}

// NewYelpAgent creates a YelpAgent. An empty apiKey leaves the agent disabled.
func NewYelpAgent(c yelp.Client, apiKey string, limits Limits) *YelpAgent {
	return &YelpAgent{client: c, apiKey: apiKey, limits: limits}
}

// Name implements Agent.
func (a *YelpAgent) Name() string { return SourceYelp }

// Capability implements Agent.
func (a *YelpAgent) Capability() Capability {
	if a.apiKey == "" || a.client == nil {
		return Disabled("yelp API key not configured")
	}
	return Enabled()
}

// Fetch implements Agent.
func (a *YelpAgent) Fetch(ctx context.Context, city venue.City, runType venue.RunType) ([]venue.RawVenue, error) {
	if !a.Capability().Enabled {
		return nil, eris.New("sources: yelp API key not configured")
	}
	log := zap.L().With(zap.String("component", "sources"), zap.String("source", SourceYelp), zap.String("city", city.Name))

	limit := a.limits.Cap(runType)
	limiter := a.limits.Limiter()
	center := city.BBox.Center()
	radius := min(radiusMeters(city.BBox), yelp.MaxRadiusMeters)

	var (
		out    []venue.RawVenue
		offset int
		pages  int
	)
	for len(out) < limit && offset+yelp.MaxLimit <= yelp.MaxOffset {
		if err := limiter.Wait(ctx); err != nil {
			return out, eris.Wrap(err, "sources: yelp rate limit wait")
		}

		req := yelp.SearchRequest{
			Latitude:   center.Lat,
			Longitude:  center.Lon,
			Radius:     radius,
			Categories: yelpCategories,
			Limit:      yelp.MaxLimit,
			Offset:     offset,
		}
		resp, err := withRetry(ctx, a.limits, SourceYelp, "search", func(ctx context.Context) (*yelp.SearchResponse, error) {
			return a.client.Search(ctx, req)
		})
		pages++
		if err != nil {
			return nil, eris.Wrapf(err, "sources: yelp search offset %d", offset)
		}

		for _, b := range resp.Businesses {
			if len(out) >= limit {
				break
			}
			rv, ok := yelpRecord(b, city)
			if !ok {
				continue
			}
			out = append(out, rv)
		}

		offset += len(resp.Businesses)
		if len(resp.Businesses) < yelp.MaxLimit || offset >= resp.Total {
			break
		}
	}

	log.Info("yelp fetch complete", zap.Int("pages", pages), zap.Int("records", len(out)))
	return out, nil
}

func yelpRecord(b yelp.Business, city venue.City) (venue.RawVenue, bool) {
	name := strings.TrimSpace(b.Name)
	if name == "" || b.ID == "" {
		return venue.RawVenue{}, false
	}
	payload, err := json.Marshal(b)
	if err != nil {
		return venue.RawVenue{}, false
	}

	rv := venue.RawVenue{
		Source:     SourceYelp,
		ExternalID: b.ID,
		SourceURL:  b.URL,
		Payload:    payload,
		Confidence: yelpConfidence,
		Name:       name,
		City:       city.Name,
		Address:    b.Address(),
		PriceLevel: venue.ParsePriceSymbols(b.Price),
		Phone:      b.Phone,
		ImageURL:   b.ImageURL,
		Closed:     b.IsClosed,
	}
	if c := b.Coordinates; c != nil && c.Latitude != nil && c.Longitude != nil {
		p := venue.Point{Lat: *c.Latitude, Lon: *c.Longitude}
		// radius search spills past the bbox corners
		if !city.BBox.Contains(p) {
			return venue.RawVenue{}, false
		}
		rv.Location = &p
	}
	for _, c := range b.Categories {
		rv.Tags = append(rv.Tags, c.Alias)
	}
	if b.Rating > 0 {
		rv.Rating = floatPtr(b.Rating)
	}
	if b.ReviewCount > 0 {
		rv.ReviewCount = intPtr(b.ReviewCount)
	}
	return rv, true
}
