// Package store persists canonical venues, their provenance and signals in
// Postgres, and reads the event sightings the events agent consumes.
package store

import (
	"context"
	"time"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/db"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// WriteResult describes what one WriteMatch changed.
type WriteResult struct {
	VenueID string
	// Created is true when a new venue row was inserted.
	Created bool
	// Conflict is true when a candidate judged new hit an existing natural
	// key, typically written by a concurrent run, and was folded into it.
	Conflict     bool
	SourcesAdded int
	AliasesAdded int
	// Venue is the row as persisted after gap filling. Only ID, City, Name,
	// Neighborhood, Category, Location and Active are populated.
	Venue venue.Venue
}

// SignalSet holds the latest value of each signal type for one venue.
type SignalSet map[venue.SignalType]float64

// Store is the persistence surface of the venue pipeline.
type Store interface {
	// ActiveVenues returns every active canonical venue in a city with its
	// aliases.
	ActiveVenues(ctx context.Context, city string) ([]venue.Venue, error)

	// WriteMatch persists one match in a single transaction: the venue row
	// (created or gap-filled), unseen provenance rows and new aliases.
	WriteMatch(ctx context.Context, m venue.Match) (WriteResult, error)

	// UpsertSignals writes windowed signal values, replacing existing
	// values for the same (venue, type, window, window start).
	UpsertSignals(ctx context.Context, signals []venue.Signal) (int64, error)

	// LatestSignals returns, per active venue in the city, the most recent
	// value of each signal type for the given window.
	LatestSignals(ctx context.Context, city string, window venue.Window) (map[string]SignalSet, error)

	// UpsertHeat overwrites the current heat row for each venue.
	UpsertHeat(ctx context.Context, rows []venue.HeatIndex) (int64, error)

	// EventVenueSightings returns upcoming events in the city that name a venue.
	EventVenueSightings(ctx context.Context, city string) ([]venue.EventSighting, error)
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgres creates a PostgresStore on an open pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Pool returns the underlying pool for subsystems sharing the connection.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}
