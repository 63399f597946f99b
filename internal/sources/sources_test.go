package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/google"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/google/mocks"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/overpass"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/yelp"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testCity = venue.City{
	Name: "New York",
	BBox: venue.BoundingBox{South: 40.49, West: -74.26, North: 40.92, East: -73.70},
}

func testLimits() Limits {
	return Limits{FullCap: 500, IncrementalCap: 100, PageDelay: 0, MaxRetries: 0}
}

func TestLimits_Cap(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 500, l.Cap(venue.RunFull))
	assert.Equal(t, 100, l.Cap(venue.RunIncremental))
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry(
		NewOverpassAgent(nil, testLimits(), 0),
		NewGoogleAgent(nil, "", testLimits()),
		NewYelpAgent(nil, "", testLimits()),
		NewEventsAgent(nil, 2),
		NewSocialAgent(),
	)
	assert.Equal(t, []string{SourceOverpass, SourceGoogle, SourceYelp, SourceEvents, SourceSocial}, r.Names())

	r.Register(NewSocialAgent())
	assert.Len(t, r.All(), 5)

	_, err := r.Get("nope")
	assert.Error(t, err)
	a, err := r.Get(SourceYelp)
	require.NoError(t, err)
	assert.Equal(t, SourceYelp, a.Name())
}

func TestGoogleAgent_MissingKey(t *testing.T) {
	a := NewGoogleAgent(google.NewClient(""), "", testLimits())

	c := a.Capability()
	assert.False(t, c.Enabled)
	assert.Contains(t, c.Reason, "key")

	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	assert.Error(t, err)
	assert.Empty(t, recs)
}

func TestYelpAgent_MissingKey(t *testing.T) {
	a := NewYelpAgent(yelp.NewClient(""), "", testLimits())
	assert.False(t, a.Capability().Enabled)

	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	assert.Error(t, err)
	assert.Empty(t, recs)
}

func TestOverpassAgent_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ql := r.PostForm.Get("data")
		assert.Contains(t, ql, "(40.490000,-74.260000,40.920000,-73.700000)")
		assert.Contains(t, ql, "out center tags 100;")

		_, _ = w.Write([]byte(`{"elements": [
			{"type": "node", "id": 1, "lat": 40.7308, "lon": -74.0008, "tags": {
				"name": "Blue Note", "amenity": "bar", "club": "jazz",
				"alt_name": "Blue Note Jazz Club;Blue Note NYC",
				"addr:housenumber": "131", "addr:street": "West 3rd Street",
				"website": "https://bluenotejazz.com", "capacity": "250", "wheelchair": "yes"
			}},
			{"type": "way", "id": 2, "center": {"lat": 40.7829, "lon": -73.9654}, "tags": {
				"name": "Central Park", "leisure": "park"
			}},
			{"type": "node", "id": 3, "lat": 40.7, "lon": -74.0, "tags": {"amenity": "bar"}}
		]}`))
	}))
	defer srv.Close()

	a := NewOverpassAgent(overpass.NewClient(overpass.WithURL(srv.URL)), testLimits(), 25)
	recs, err := a.Fetch(context.Background(), testCity, venue.RunIncremental)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	bn := recs[0]
	assert.Equal(t, SourceOverpass, bn.Source)
	assert.Equal(t, "node/1", bn.ExternalID)
	assert.Equal(t, "https://www.openstreetmap.org/node/1", bn.SourceURL)
	assert.Equal(t, []string{"Blue Note Jazz Club", "Blue Note NYC"}, bn.Aliases)
	assert.Equal(t, []string{"bar", "jazz"}, bn.Tags)
	assert.Equal(t, "131 West 3rd Street", bn.Address)
	require.NotNil(t, bn.Capacity)
	assert.Equal(t, 250, *bn.Capacity)
	assert.True(t, bn.Accessibility["wheelchair"])
	assert.NotEmpty(t, bn.Payload)

	park := recs[1]
	require.NotNil(t, park.Location)
	assert.InDelta(t, 40.7829, park.Location.Lat, 1e-9)
}

func TestOverpassAgent_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	a := NewOverpassAgent(overpass.NewClient(overpass.WithURL(srv.URL)), testLimits(), 0)
	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	require.Error(t, err)
	assert.Nil(t, recs)
	assert.Contains(t, err.Error(), "504")
}

func TestGoogleAgent_PaginatesAndCaps(t *testing.T) {
	client := mocks.NewMockClient(t)

	page := func(prefix string, n int, next string) *google.TextSearchResponse {
		resp := &google.TextSearchResponse{NextPageToken: next}
		for i := 0; i < n; i++ {
			resp.Places = append(resp.Places, google.Place{
				ID:          fmt.Sprintf("%s-%d", prefix, i),
				DisplayName: google.LocalizedText{Text: fmt.Sprintf("Venue %s %d", prefix, i)},
				Location:    &google.LatLng{Latitude: 40.7, Longitude: -74.0},
				Types:       []string{"bar", "point_of_interest"},
				PrimaryType: "bar",
			})
		}
		return resp
	}

	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(r google.TextSearchRequest) bool {
		return r.IncludedType == "bar" && r.PageToken == ""
	})).Return(page("a", 20, "p2"), nil).Once()
	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(r google.TextSearchRequest) bool {
		return r.IncludedType == "bar" && r.PageToken == "p2"
	})).Return(page("b", 20, "p3"), nil).Once()
	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(r google.TextSearchRequest) bool {
		return r.IncludedType == "bar" && r.PageToken == "p3"
	})).Return(page("c", 20, "p4"), nil).Once()

	limits := testLimits()
	limits.IncrementalCap = 50
	a := NewGoogleAgent(client, "key", limits)

	recs, err := a.Fetch(context.Background(), testCity, venue.RunIncremental)
	require.NoError(t, err)
	assert.Len(t, recs, 50)
	assert.Equal(t, []string{"bar"}, recs[0].Tags)
	assert.Equal(t, SourceGoogle, recs[0].Source)
}

func TestGoogleAgent_ErrorIsUnavailable(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	a := NewGoogleAgent(client, "key", testLimits())
	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	require.Error(t, err)
	assert.Nil(t, recs)
}

func TestGoogleAgent_OpenBreakerSkipsUpstream(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("TextSearch", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	limits := testLimits()
	limits.Breakers = resilience.NewBreakers(resilience.BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour})
	a := NewGoogleAgent(client, "key", limits)

	_, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	require.Error(t, err)
	assert.NotErrorIs(t, err, resilience.ErrBreakerOpen)

	_, err = a.Fetch(context.Background(), testCity, venue.RunFull)
	require.ErrorIs(t, err, resilience.ErrBreakerOpen)
	assert.Equal(t, resilience.BreakerOpen, limits.Breakers.Get(SourceGoogle).State())
}

func TestGoogleRecord_Mapping(t *testing.T) {
	yes := true
	rv, ok := googleRecord(google.Place{
		ID:                  "p1",
		DisplayName:         google.LocalizedText{Text: "Comedy Cellar"},
		PriceLevel:          "PRICE_LEVEL_MODERATE",
		BusinessStatus:      "CLOSED_PERMANENTLY",
		Rating:              4.7,
		UserRatingCount:     900,
		EditorialSummary:    &google.LocalizedText{Text: "Basement club"},
		RegularOpeningHours: &google.OpeningHours{WeekdayDescriptions: []string{"Mon: 7PM", "Tue: 7PM"}},
		AccessibilityOptions: &google.AccessibilityOptions{
			WheelchairAccessibleEntrance: &yes,
		},
	}, "New York")
	require.True(t, ok)
	require.NotNil(t, rv.PriceLevel)
	assert.Equal(t, 2, *rv.PriceLevel)
	assert.True(t, rv.Closed)
	assert.Equal(t, "Mon: 7PM; Tue: 7PM", rv.Hours)
	assert.Equal(t, "Basement club", rv.Description)
	assert.True(t, rv.Accessibility["wheelchair_entrance"])

	_, ok = googleRecord(google.Place{ID: "p2"}, "New York")
	assert.False(t, ok)
}

func TestYelpAgent_Paginates(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		offset := r.URL.Query().Get("offset")
		n := 50
		if offset == "50" {
			n = 10
		}
		var items []string
		for i := 0; i < n; i++ {
			items = append(items, fmt.Sprintf(`{"id": "y%s-%d", "name": "Bar %s %d", "price": "$$",
				"categories": [{"alias": "bars", "title": "Bars"}],
				"coordinates": {"latitude": 40.73, "longitude": -74.0}}`, offset, i, offset, i))
		}
		_, _ = w.Write([]byte(`{"total": 60, "businesses": [` + strings.Join(items, ",") + `]}`))
	}))
	defer srv.Close()

	a := NewYelpAgent(yelp.NewClient("k", yelp.WithBaseURL(srv.URL)), "k", testLimits())
	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	require.NoError(t, err)
	assert.Len(t, recs, 60)
	assert.Equal(t, int32(2), calls.Load())
	require.NotNil(t, recs[0].PriceLevel)
	assert.Equal(t, 2, *recs[0].PriceLevel)
}

func TestYelpRecord_OutsideCity(t *testing.T) {
	lat, lon := 41.5, -72.0
	_, ok := yelpRecord(yelp.Business{
		ID: "far", Name: "Far Away",
		Coordinates: &yelp.Coordinates{Latitude: &lat, Longitude: &lon},
	}, testCity)
	assert.False(t, ok)
}

func TestYelpAgent_PageDelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var items []string
		for i := 0; i < 50; i++ {
			items = append(items, fmt.Sprintf(`{"id": "y%d", "name": "Bar %d"}`, i, i))
		}
		_, _ = w.Write([]byte(`{"total": 1000, "businesses": [` + strings.Join(items, ",") + `]}`))
	}))
	defer srv.Close()

	limits := testLimits()
	limits.PageDelay = 50 * time.Millisecond
	limits.IncrementalCap = 100
	a := NewYelpAgent(yelp.NewClient("k", yelp.WithBaseURL(srv.URL)), "k", limits)

	start := time.Now()
	recs, err := a.Fetch(context.Background(), testCity, venue.RunIncremental)
	require.NoError(t, err)
	assert.Len(t, recs, 100)
	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond)
}

type fakeSightings struct {
	rows []venue.EventSighting
	err  error
}

func (f fakeSightings) EventVenueSightings(context.Context, string) ([]venue.EventSighting, error) {
	return f.rows, f.err
}

func TestEventConfidence(t *testing.T) {
	assert.InDelta(t, 0.6, EventConfidence(2), 1e-9)
	assert.InDelta(t, 0.65, EventConfidence(3), 1e-9)
	assert.InDelta(t, 0.9, EventConfidence(8), 1e-9)
	assert.InDelta(t, 0.9, EventConfidence(50), 1e-9)
	assert.Less(t, EventConfidence(1000), 1.0)
}

func TestRecognizedPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.eventbrite.com/e/123", true},
		{"https://nyc.eventbrite.com/e/123", true},
		{"https://ra.co/events/1", true},
		{"https://dice.fm/event/abc", true},
		{"https://lu.ma/xyz", true},
		{"https://example.com/ra.co", false},
		{"https://notmeetup.com/x", false},
		{"", false},
		{"::bad", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RecognizedPlatform(tt.url), tt.url)
	}
}

func TestEventsAgent_Fetch(t *testing.T) {
	loc := &venue.Point{Lat: 40.7308, Lon: -74.0008}
	reader := fakeSightings{rows: []venue.EventSighting{
		{EventID: "e1", VenueName: "Blue Note", SourceURL: "https://www.eventbrite.com/e/1"},
		{EventID: "e2", VenueName: "The Blue Note", SourceURL: "https://dice.fm/event/2", Location: loc},
		{EventID: "e3", VenueName: "BLUE NOTE", SourceURL: "https://ra.co/events/3", Address: "131 W 3rd St"},
		{EventID: "e4", VenueName: "Smalls", SourceURL: "https://www.eventbrite.com/e/4"},
		{EventID: "e5", VenueName: "Smalls", SourceURL: "https://someblog.example/5"},
		{EventID: "e6", VenueName: "Mezzrow", SourceURL: "https://songkick.com/6"},
		{EventID: "e7", VenueName: "Mezzrow", SourceURL: "https://bandsintown.com/7"},
	}}

	a := NewEventsAgent(reader, 2)
	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	bn := recs[0]
	assert.Equal(t, "Blue Note", bn.Name)
	assert.Equal(t, "new york:blue note", bn.ExternalID)
	assert.InDelta(t, 0.65, bn.Confidence, 1e-9)
	assert.Equal(t, "131 W 3rd St", bn.Address)
	require.NotNil(t, bn.Location)
	assert.JSONEq(t, `{"event_ids": ["e1","e2","e3"], "events": 3}`, string(bn.Payload))

	assert.Equal(t, "Mezzrow", recs[1].Name)
	assert.InDelta(t, 0.6, recs[1].Confidence, 1e-9)
}

func TestEventsAgent_ReadError(t *testing.T) {
	a := NewEventsAgent(fakeSightings{err: errors.New("db down")}, 2)
	_, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read event sightings")
}

func TestSocialAgent(t *testing.T) {
	a := NewSocialAgent()
	assert.True(t, a.Capability().Enabled)
	recs, err := a.Fetch(context.Background(), testCity, venue.RunFull)
	assert.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRadiusMeters(t *testing.T) {
	r := radiusMeters(testCity.BBox)
	assert.Greater(t, r, 30000)
	assert.Less(t, r, 40000)
}
