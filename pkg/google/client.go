package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
)

const (
	defaultBaseURL = "https://places.googleapis.com/v1"

	// MaxPageSize is the largest page Text Search returns.
	MaxPageSize = 20
)

var fieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.location",
	"places.types",
	"places.primaryType",
	"places.priceLevel",
	"places.rating",
	"places.userRatingCount",
	"places.websiteUri",
	"places.internationalPhoneNumber",
	"places.businessStatus",
	"places.editorialSummary",
	"places.googleMapsUri",
	"places.regularOpeningHours.weekdayDescriptions",
	"places.accessibilityOptions",
	"nextPageToken",
}, ",")

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the body of a Places Text Search call.
type TextSearchRequest struct {
	TextQuery           string               `json:"textQuery"`
	IncludedType        string               `json:"includedType,omitempty"`
	PageSize            int                  `json:"pageSize,omitempty"`
	PageToken           string               `json:"pageToken,omitempty"`
	LocationRestriction *LocationRestriction `json:"locationRestriction,omitempty"`
}

// LocationRestriction limits results to a rectangle.
type LocationRestriction struct {
	Rectangle Rectangle `json:"rectangle"`
}

// Rectangle is a low (south-west) / high (north-east) viewport.
type Rectangle struct {
	Low  LatLng `json:"low"`
	High LatLng `json:"high"`
}

// LatLng is a coordinate pair.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                       string                `json:"id"`
	DisplayName              LocalizedText         `json:"displayName"`
	FormattedAddress         string                `json:"formattedAddress"`
	Location                 *LatLng               `json:"location"`
	Types                    []string              `json:"types"`
	PrimaryType              string                `json:"primaryType"`
	PriceLevel               string                `json:"priceLevel"`
	Rating                   float64               `json:"rating"`
	UserRatingCount          int                   `json:"userRatingCount"`
	WebsiteURI               string                `json:"websiteUri"`
	InternationalPhoneNumber string                `json:"internationalPhoneNumber"`
	BusinessStatus           string                `json:"businessStatus"`
	EditorialSummary         *LocalizedText        `json:"editorialSummary"`
	GoogleMapsURI            string                `json:"googleMapsUri"`
	RegularOpeningHours      *OpeningHours         `json:"regularOpeningHours"`
	AccessibilityOptions     *AccessibilityOptions `json:"accessibilityOptions"`
}

// LocalizedText holds a display string.
type LocalizedText struct {
	Text string `json:"text"`
}

// OpeningHours holds human-readable weekly hours.
type OpeningHours struct {
	WeekdayDescriptions []string `json:"weekdayDescriptions"`
}

// AccessibilityOptions lists wheelchair accessibility flags.
type AccessibilityOptions struct {
	WheelchairAccessibleEntrance *bool `json:"wheelchairAccessibleEntrance"`
	WheelchairAccessibleRestroom *bool `json:"wheelchairAccessibleRestroom"`
	WheelchairAccessibleSeating  *bool `json:"wheelchairAccessibleSeating"`
}

// PermanentlyClosed reports whether Google marks the place closed for good.
func (p Place) PermanentlyClosed() bool {
	return p.BusinessStatus == "CLOSED_PERMANENTLY"
}

// PriceLevelValue maps the PRICE_LEVEL_* enum onto 0..4. Unknown values
// return nil.
func (p Place) PriceLevelValue() *int {
	levels := map[string]int{
		"PRICE_LEVEL_FREE":           0,
		"PRICE_LEVEL_INEXPENSIVE":    1,
		"PRICE_LEVEL_MODERATE":       2,
		"PRICE_LEVEL_EXPENSIVE":      3,
		"PRICE_LEVEL_VERY_EXPENSIVE": 4,
	}
	v, ok := levels[p.PriceLevel]
	if !ok {
		return nil
	}
	return &v
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
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

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, in TextSearchRequest) (*TextSearchResponse, error) {
	if in.PageSize <= 0 || in.PageSize > MaxPageSize {
		in.PageSize = MaxPageSize
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.NewStatusError("google", resp.StatusCode, respBody)
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}
