// Package geocode resolves street addresses to coordinates with the Google
// Geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Precision of a geocoding result, best first.
const (
	QualityRooftop     = "rooftop"
	QualityRange       = "range"
	QualityCentroid    = "centroid"
	QualityApproximate = "approximate"
)

// Client geocodes addresses.
type Client interface {
	Geocode(ctx context.Context, req Request) (*Result, error)
}

// Request is one address lookup, optionally biased to a bounding box.
type Request struct {
	Address string
	// Bounds biases results toward south,west|north,east when set.
	Bounds *Bounds
}

// Bounds is a viewport bias.
type Bounds struct {
	South, West, North, East float64
}

// Result holds the outcome of a lookup. An unmatched address is not an error.
type Result struct {
	Latitude         float64
	Longitude        float64
	Quality          string
	FormattedAddress string
	Matched          bool
}

// Precise reports whether the result locates a building or street segment
// rather than an area.
func (r *Result) Precise() bool {
	return r != nil && r.Matched && r.Quality != QualityApproximate
}

type apiResponse struct {
	Status       string      `json:"status"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Results      []apiResult `json:"results"`
}

type apiResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the geocoding endpoint.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string]*Result
}

// NewClient creates a geocoding client. Results, matched or not, are cached
// for the life of the client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(10, 10),
		cache:   make(map[string]*Result),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Geocode(ctx context.Context, in Request) (*Result, error) {
	addr := strings.Join(strings.Fields(in.Address), " ")
	if addr == "" {
		return &Result{}, nil
	}
	key := cacheKey(addr, in.Bounds)

	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	params := url.Values{"address": {addr}, "key": {c.apiKey}}
	if b := in.Bounds; b != nil {
		params.Set("bounds", fmt.Sprintf("%f,%f|%f,%f", b.South, b.West, b.North, b.East))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewStatusError("geocode", resp.StatusCode, body)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "geocode: unmarshal response")
	}

	var result *Result
	switch out.Status {
	case "OK":
		if len(out.Results) == 0 {
			result = &Result{}
			break
		}
		r := out.Results[0]
		result = &Result{
			Latitude:         r.Geometry.Location.Lat,
			Longitude:        r.Geometry.Location.Lng,
			Quality:          quality(r.Geometry.LocationType),
			FormattedAddress: r.FormattedAddress,
			Matched:          true,
		}
	case "ZERO_RESULTS":
		result = &Result{}
	case "OVER_QUERY_LIMIT":
		return nil, resilience.NewTransientError(eris.Errorf("geocode: over query limit: %s", out.ErrorMessage), http.StatusTooManyRequests)
	default:
		return nil, eris.Errorf("geocode: status %s: %s", out.Status, out.ErrorMessage)
	}

	c.mu.Lock()
	c.cache[key] = result
	c.mu.Unlock()
	return result, nil
}

func cacheKey(addr string, b *Bounds) string {
	key := strings.ToLower(addr)
	if b != nil {
		key += fmt.Sprintf("|%.3f,%.3f,%.3f,%.3f", b.South, b.West, b.North, b.East)
	}
	return key
}

func quality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return QualityRooftop
	case "RANGE_INTERPOLATED":
		return QualityRange
	case "GEOMETRIC_CENTER":
		return QualityCentroid
	default:
		return QualityApproximate
	}
}
