// Package yelp is a minimal client for the Yelp Fusion business search API.
package yelp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
)

const (
	defaultBaseURL = "https://api.yelp.com/v3"

	// MaxRadiusMeters is the largest radius the search endpoint accepts.
	MaxRadiusMeters = 40000
	// MaxLimit is the largest page size the search endpoint accepts.
	MaxLimit = 50
	// MaxOffset bounds offset+limit for a single query.
	MaxOffset = 1000
)

// Client performs Yelp Fusion API operations.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest holds parameters for /businesses/search.
type SearchRequest struct {
	Latitude   float64
	Longitude  float64
	Radius     int
	Categories []string
	Limit      int
	Offset     int
}

// SearchResponse is the business search payload.
type SearchResponse struct {
	Businesses []Business `json:"businesses"`
	Total      int        `json:"total"`
}

// Business is one Yelp business.
type Business struct {
	ID          string       `json:"id"`
	Alias       string       `json:"alias"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	ImageURL    string       `json:"image_url"`
	IsClosed    bool         `json:"is_closed"`
	ReviewCount int          `json:"review_count"`
	Rating      float64      `json:"rating"`
	Price       string       `json:"price"`
	Phone       string       `json:"phone"`
	Categories  []Category   `json:"categories"`
	Coordinates *Coordinates `json:"coordinates"`
	Location    Location     `json:"location"`
}

// Category is a Yelp category alias/title pair.
type Category struct {
	Alias string `json:"alias"`
	Title string `json:"title"`
}

// Coordinates may hold nulls for businesses without a pin.
type Coordinates struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Location is the business address.
type Location struct {
	DisplayAddress []string `json:"display_address"`
}

// Address joins the display address lines.
func (b Business) Address() string {
	return strings.Join(b.Location.DisplayAddress, ", ")
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a Yelp Fusion client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, in SearchRequest) (*SearchResponse, error) {
	if in.Limit <= 0 || in.Limit > MaxLimit {
		in.Limit = MaxLimit
	}
	if in.Radius <= 0 || in.Radius > MaxRadiusMeters {
		in.Radius = MaxRadiusMeters
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(in.Latitude, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(in.Longitude, 'f', 6, 64))
	params.Set("radius", strconv.Itoa(in.Radius))
	params.Set("limit", strconv.Itoa(in.Limit))
	if in.Offset > 0 {
		params.Set("offset", strconv.Itoa(in.Offset))
	}
	if len(in.Categories) > 0 {
		params.Set("categories", strings.Join(in.Categories, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/businesses/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewStatusError("yelp", resp.StatusCode, body)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "yelp: unmarshal response")
	}
	return &result, nil
}
