// Package overpass is a minimal client for the OpenStreetMap Overpass API.
package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
)

const defaultURL = "https://overpass-api.de/api/interpreter"

// Client runs Overpass QL queries.
type Client interface {
	Query(ctx context.Context, ql string) (*Response, error)
}

// Response is the JSON body returned by the interpreter.
type Response struct {
	Elements []Element `json:"elements"`
}

// Element is a node, way or relation. Ways and relations carry a Center
// when queried with "out center".
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Tags   map[string]string `json:"tags"`
}

// Center is the centroid of a way or relation.
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coordinates returns the element's point, preferring explicit lat/lon.
func (e Element) Coordinates() (lat, lon float64, ok bool) {
	if e.Lat != nil && e.Lon != nil {
		return *e.Lat, *e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// Key is the stable OSM identifier, e.g. "node/123".
func (e Element) Key() string {
	return fmt.Sprintf("%s/%d", e.Type, e.ID)
}

// URL links to the element on openstreetmap.org.
func (e Element) URL() string {
	return "https://www.openstreetmap.org/" + e.Key()
}

// Option configures the client.
type Option func(*httpClient)

// WithURL overrides the interpreter endpoint.
func WithURL(u string) Option {
	return func(c *httpClient) {
		c.url = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	url  string
	http *http.Client
}

// NewClient creates an Overpass client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		url:  defaultURL,
		http: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Query(ctx context.Context, ql string) (*Response, error) {
	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewStatusError("overpass", resp.StatusCode, body)
	}

	var result Response
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}
	return &result, nil
}

// BBox is a south, west, north, east rectangle.
type BBox struct {
	South, West, North, East float64
}

// VenueQuery builds a QL query for named amenity, leisure and tourism
// features matching any of the given tag values inside bbox. limit <= 0
// means no limit.
func VenueQuery(bbox BBox, amenity, leisure, tourism []string, timeoutSecs, limit int) string {
	box := fmt.Sprintf("(%f,%f,%f,%f)", bbox.South, bbox.West, bbox.North, bbox.East)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", timeoutSecs)
	for _, set := range []struct {
		key    string
		values []string
	}{{"amenity", amenity}, {"leisure", leisure}, {"tourism", tourism}} {
		if len(set.values) == 0 {
			continue
		}
		re := strings.Join(set.values, "|")
		fmt.Fprintf(&b, "  nwr[\"%s\"~\"^(%s)$\"][\"name\"]%s;\n", set.key, re, box)
	}
	b.WriteString(");\nout center tags")
	if limit > 0 {
		fmt.Fprintf(&b, " %d", limit)
	}
	b.WriteString(";")
	return b.String()
}
