package sources

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/google"
)

const googleConfidence = 0.9

type placeQuery struct {
	text         string
	includedType string
}

var googleQueries = []placeQuery{
	{"bars", "bar"},
	{"night clubs", "night_club"},
	{"performing arts theaters", "performing_arts_theater"},
	{"live music venues", ""},
	{"comedy clubs", "comedy_club"},
	{"art galleries", "art_gallery"},
	{"museums", "museum"},
	{"movie theaters", "movie_theater"},
	{"parks", "park"},
	{"community centers", "community_center"},
}

// GoogleAgent searches Google Places within the city bbox.
type GoogleAgent struct {
	client google.Client
	apiKey string
	limits Limits
}

// NewGoogleAgent creates a GoogleAgent. An empty apiKey leaves the agent
// disabled.
func NewGoogleAgent(c google.Client, apiKey string, limits Limits) *GoogleAgent {
	return &GoogleAgent{client: c, apiKey: apiKey, limits: limits}
}

// Name implements Agent.
func (a *GoogleAgent) Name() string { return SourceGoogle }

// Capability implements Agent.
func (a *GoogleAgent) Capability() Capability {
	if a.apiKey == "" || a.client == nil {
		return Disabled("google places API key not configured")
	}
	return Enabled()
}

// Fetch implements Agent.
func (a *GoogleAgent) Fetch(ctx context.Context, city venue.City, runType venue.RunType) ([]venue.RawVenue, error) {
	if !a.Capability().Enabled {
		return nil, eris.New("sources: google places API key not configured")
	}
	log := zap.L().With(zap.String("component", "sources"), zap.String("source", SourceGoogle), zap.String("city", city.Name))

	limit := a.limits.Cap(runType)
	limiter := a.limits.Limiter()
	rect := &google.LocationRestriction{Rectangle: google.Rectangle{
		Low:  google.LatLng{Latitude: city.BBox.South, Longitude: city.BBox.West},
		High: google.LatLng{Latitude: city.BBox.North, Longitude: city.BBox.East},
	}}

	seen := make(map[string]bool)
	var (
		out   []venue.RawVenue
		pages int
	)

	for _, q := range googleQueries {
		pageToken := ""
		for len(out) < limit {
			if err := limiter.Wait(ctx); err != nil {
				return out, eris.Wrap(err, "sources: google rate limit wait")
			}

			req := google.TextSearchRequest{
				TextQuery:           q.text + " in " + city.Name,
				IncludedType:        q.includedType,
				PageToken:           pageToken,
				LocationRestriction: rect,
			}
			resp, err := withRetry(ctx, a.limits, SourceGoogle, "text_search", func(ctx context.Context) (*google.TextSearchResponse, error) {
				return a.client.TextSearch(ctx, req)
			})
			pages++
			if err != nil {
				return nil, eris.Wrapf(err, "sources: google text search %q", q.text)
			}

			for _, p := range resp.Places {
				if len(out) >= limit {
					break
				}
				if seen[p.ID] {
					continue
				}
				rv, ok := googleRecord(p, city.Name)
				if !ok {
					continue
				}
				seen[p.ID] = true
				out = append(out, rv)
			}

			if resp.NextPageToken == "" {
				break
			}
			pageToken = resp.NextPageToken
		}
		if len(out) >= limit {
			break
		}
	}

	log.Info("google places fetch complete", zap.Int("pages", pages), zap.Int("records", len(out)))
	return out, nil
}

func googleRecord(p google.Place, city string) (venue.RawVenue, bool) {
	name := strings.TrimSpace(p.DisplayName.Text)
	if name == "" || p.ID == "" {
		return venue.RawVenue{}, false
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return venue.RawVenue{}, false
	}

	rv := venue.RawVenue{
		Source:     SourceGoogle,
		ExternalID: p.ID,
		SourceURL:  p.GoogleMapsURI,
		Payload:    payload,
		Confidence: googleConfidence,
		Name:       name,
		City:       city,
		Address:    p.FormattedAddress,
		PriceLevel: p.PriceLevelValue(),
		Website:    p.WebsiteURI,
		Phone:      p.InternationalPhoneNumber,
		Closed:     p.PermanentlyClosed(),
	}
	if p.Location != nil {
		rv.Location = &venue.Point{Lat: p.Location.Latitude, Lon: p.Location.Longitude}
	}
	if p.PrimaryType != "" {
		rv.Tags = append(rv.Tags, p.PrimaryType)
	}
	for _, t := range p.Types {
		if t != p.PrimaryType && t != "point_of_interest" && t != "establishment" {
			rv.Tags = append(rv.Tags, t)
		}
	}
	if p.Rating > 0 {
		rv.Rating = floatPtr(p.Rating)
	}
	if p.UserRatingCount > 0 {
		rv.ReviewCount = intPtr(p.UserRatingCount)
	}
	if p.EditorialSummary != nil {
		rv.Description = p.EditorialSummary.Text
	}
	if p.RegularOpeningHours != nil {
		rv.Hours = strings.Join(p.RegularOpeningHours.WeekdayDescriptions, "; ")
	}
	if opts := p.AccessibilityOptions; opts != nil {
		acc := map[string]bool{}
		for k, v := range map[string]*bool{
			"wheelchair_entrance": opts.WheelchairAccessibleEntrance,
			"wheelchair_restroom": opts.WheelchairAccessibleRestroom,
			"wheelchair_seating":  opts.WheelchairAccessibleSeating,
		} {
			if v != nil && *v {
				acc[k] = true
			}
		}
		if len(acc) > 0 {
			rv.Accessibility = acc
		}
	}
	return rv, true
}
