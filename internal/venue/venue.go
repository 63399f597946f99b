// Package venue defines the domain types shared by every stage of the venue
// ingestion pipeline: raw source sightings, normalized candidates, match
// decisions, canonical venues and their provenance, signals, and run records.
package venue

import (
	"encoding/json"
	"time"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RawVenue is one record as produced by a single source agent. It is
// read-only once created and is persisted only as provenance payload.
type RawVenue struct {
	Source        string          `json:"source"`
	ExternalID    string          `json:"external_id"`
	SourceURL     string          `json:"source_url,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Confidence    float64         `json:"confidence"`
	Name          string          `json:"name"`
	Aliases       []string        `json:"aliases,omitempty"`
	Location      *Point          `json:"location,omitempty"`
	Address       string          `json:"address,omitempty"`
	Neighborhood  string          `json:"neighborhood,omitempty"`
	City          string          `json:"city"`
	Tags          []string        `json:"tags,omitempty"`
	PriceLevel    *int            `json:"price_level,omitempty"`
	Capacity      *int            `json:"capacity,omitempty"`
	Rating        *float64        `json:"rating,omitempty"`
	ReviewCount   *int            `json:"review_count,omitempty"`
	Website       string          `json:"website,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Description   string          `json:"description,omitempty"`
	ImageURL      string          `json:"image_url,omitempty"`
	Hours         string          `json:"hours,omitempty"`
	Accessibility map[string]bool `json:"accessibility,omitempty"`
	Closed        bool            `json:"closed,omitempty"`
}

// Candidate is the merged output of one or more RawVenues judged to be the
// same physical place by coarse grouping.
type Candidate struct {
	Name           string          `json:"name"`
	NormalizedName string          `json:"normalized_name"`
	Aliases        []string        `json:"aliases,omitempty"`
	Location       *Point          `json:"location,omitempty"`
	GeoCell        string          `json:"geo_cell"`
	Address        string          `json:"address,omitempty"`
	Neighborhood   string          `json:"neighborhood,omitempty"`
	City           string          `json:"city"`
	Category       Category        `json:"category"`
	Subcategories  []string        `json:"subcategories,omitempty"`
	PriceBand      PriceBand       `json:"price_band,omitempty"`
	Capacity       *int            `json:"capacity,omitempty"`
	Rating         *float64        `json:"rating,omitempty"`
	ReviewCount    *int            `json:"review_count,omitempty"`
	Website        string          `json:"website,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Description    string          `json:"description,omitempty"`
	ImageURL       string          `json:"image_url,omitempty"`
	Hours          string          `json:"hours,omitempty"`
	Accessibility  map[string]bool `json:"accessibility,omitempty"`
	Active         bool            `json:"active"`
	Sources        []RawVenue      `json:"sources"`
}

// Match pairs a candidate with the canonical venue it resolved to. A Match
// with an empty VenueID is a new venue; Confidence is then the best score
// seen below the threshold (zero when nothing was compared).
type Match struct {
	Candidate  Candidate `json:"candidate"`
	VenueID    string    `json:"venue_id,omitempty"`
	Confidence float64   `json:"confidence"`
}

// IsNew reports whether the candidate did not match an existing venue.
func (m Match) IsNew() bool { return m.VenueID == "" }

// Venue is the canonical, persisted representation of a physical place.
type Venue struct {
	ID             string    `json:"id"`
	City           string    `json:"city"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	Aliases        []string  `json:"aliases,omitempty"`
	Location       *Point    `json:"location,omitempty"`
	GeoCell        string    `json:"geo_cell"`
	Address        string    `json:"address,omitempty"`
	Neighborhood   string    `json:"neighborhood,omitempty"`
	Category       Category  `json:"category"`
	Subcategories  []string  `json:"subcategories,omitempty"`
	PriceBand      PriceBand `json:"price_band,omitempty"`
	Capacity       *int      `json:"capacity,omitempty"`
	Website        string    `json:"website,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Description    string    `json:"description,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	Hours          string    `json:"hours,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Source is one provenance row: a (source, external id) pair matched to a venue.
type Source struct {
	VenueID    string          `json:"venue_id"`
	Source     string          `json:"source"`
	ExternalID string          `json:"external_id"`
	SourceURL  string          `json:"source_url,omitempty"`
	Confidence float64         `json:"confidence"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Alias is one known name variant for a venue.
type Alias struct {
	VenueID         string `json:"venue_id"`
	Alias           string `json:"alias"`
	NormalizedAlias string `json:"normalized_alias"`
}

// SignalType names a raw signal feeding the heat index.
type SignalType string

// Signal types.
const (
	SignalEventActivity SignalType = "event_activity"
	SignalSocialHeat    SignalType = "social_heat"
	SignalUserTraffic   SignalType = "user_traffic"
	SignalRating        SignalType = "rating"
	SignalRisk          SignalType = "risk"
)

// Window is the granularity of a signal's time window.
type Window string

// Signal windows.
const (
	WindowHourly  Window = "hourly"
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// Signal is a time-windowed raw signal value for a venue.
type Signal struct {
	VenueID     string     `json:"venue_id"`
	Type        SignalType `json:"signal_type"`
	Window      Window     `json:"window"`
	WindowStart time.Time  `json:"window_start"`
	Value       float64    `json:"value"`
}

// HeatComponents breaks a heat score into its weighted parts.
type HeatComponents struct {
	Events  float64 `json:"events"`
	Social  float64 `json:"social"`
	Rating  float64 `json:"rating"`
	Traffic float64 `json:"traffic"`
}

// HeatIndex is the single current heat row for a venue.
type HeatIndex struct {
	VenueID    string         `json:"venue_id"`
	Score      float64        `json:"score"`
	Components HeatComponents `json:"components"`
	ComputedAt time.Time      `json:"computed_at"`
}

// EventSighting is one upcoming event row naming a venue, as read from the
// internal events table.
type EventSighting struct {
	EventID   string
	VenueName string
	SourceURL string
	Address   string
	Location  *Point
	StartsAt  time.Time
}
