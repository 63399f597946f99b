package venue

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// RunType selects how much data each source is asked for.
type RunType string

// Run types.
const (
	RunFull        RunType = "FULL"
	RunIncremental RunType = "INCREMENTAL"
)

// ParseRunType converts a string into a RunType.
func ParseRunType(s string) (RunType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FULL":
		return RunFull, nil
	case "INCREMENTAL", "INCR":
		return RunIncremental, nil
	default:
		return "", eris.Errorf("unknown run type: %q (valid: full, incremental)", s)
	}
}

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

// Run statuses.
const (
	StatusRunning RunStatus = "RUNNING"
	StatusSuccess RunStatus = "SUCCESS"
	StatusPartial RunStatus = "PARTIAL"
	StatusFailed  RunStatus = "FAILED"
)

// ErrorKind classifies a recorded run error.
type ErrorKind string

// Error kinds.
const (
	ErrSourceUnavailable ErrorKind = "source_unavailable"
	ErrParse             ErrorKind = "parse"
	ErrPersistence       ErrorKind = "persistence"
	ErrGraph             ErrorKind = "graph"
	ErrQualityAnomaly    ErrorKind = "quality_anomaly"
	ErrInternal          ErrorKind = "internal"
)

// RunError is one structured error collected during a run.
type RunError struct {
	Stage   string         `json:"stage"`
	Source  string         `json:"source,omitempty"`
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// Stats is the aggregate statistics blob persisted with a run.
type Stats struct {
	SourceCounts       map[string]int `json:"source_counts"`
	RawTotal           int            `json:"raw_total"`
	SkippedRecords     int            `json:"skipped_records"`
	Geocoded           int            `json:"geocoded"`
	NormalizedTotal    int            `json:"normalized_total"`
	CoordinateCoverage float64        `json:"coordinate_coverage"`
	CategoryCoverage   float64        `json:"category_coverage"`
	WebsiteCoverage    float64        `json:"website_coverage"`
	ExistingVenues     int            `json:"existing_venues"`
	Matched            int            `json:"matched"`
	New                int            `json:"new"`
	AmbiguousMatches   int            `json:"ambiguous_matches"`
	VenuesCreated      int            `json:"venues_created"`
	VenuesUpdated      int            `json:"venues_updated"`
	ConflictMatches    int            `json:"conflict_matches"`
	SourcesAdded       int            `json:"sources_added"`
	AliasesAdded       int            `json:"aliases_added"`
	WriteErrors        int            `json:"write_errors"`
	GraphMirrored      int            `json:"graph_mirrored"`
	GraphErrors        int            `json:"graph_errors"`
	EventSignals       int            `json:"event_signals"`
	HeatComputed       int            `json:"heat_computed"`
	Anomalies          int            `json:"anomalies"`
	Warnings           int            `json:"warnings"`
}

// Run is one persisted ingestion run.
type Run struct {
	ID          string     `json:"id"`
	City        string     `json:"city"`
	Type        RunType    `json:"run_type"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       *Stats     `json:"stats,omitempty"`
	Errors      []RunError `json:"errors,omitempty"`
}

// BoundingBox is a geographic rectangle in degrees.
type BoundingBox struct {
	South float64 `yaml:"south" json:"south" validate:"gte=-90,lte=90,ltfield=North"`
	West  float64 `yaml:"west" json:"west" validate:"gte=-180,lte=180,ltfield=East"`
	North float64 `yaml:"north" json:"north" validate:"gte=-90,lte=90"`
	East  float64 `yaml:"east" json:"east" validate:"gte=-180,lte=180"`
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Point {
	return Point{Lat: (b.South + b.North) / 2, Lon: (b.West + b.East) / 2}
}

// Contains reports whether p lies inside the box, edges included.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lon >= b.West && p.Lon <= b.East
}

// City is the per-city configuration every source agent is scoped by.
type City struct {
	Name                  string      `yaml:"name" json:"name" validate:"required"`
	BBox                  BoundingBox `yaml:"bbox" json:"bbox"`
	Neighborhoods         []string    `yaml:"neighborhoods" json:"neighborhoods,omitempty"`
	NeighborhoodShapefile string      `yaml:"neighborhood_shapefile" json:"neighborhood_shapefile,omitempty"`
	NeighborhoodField     string      `yaml:"neighborhood_field" json:"neighborhood_field,omitempty"`
}
