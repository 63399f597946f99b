package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

const eventSightingsSQL = `SELECT id, venue_name, COALESCE(source_url, ''), COALESCE(address, ''),
	lat, lon, start_time
FROM events
WHERE city = $1 AND venue_name IS NOT NULL AND btrim(venue_name) <> '' AND start_time > now()
ORDER BY start_time, id`

// EventVenueSightings implements Store. The events table is owned by the
// event scraper and only read here.
func (s *PostgresStore) EventVenueSightings(ctx context.Context, city string) ([]venue.EventSighting, error) {
	rows, err := s.pool.Query(ctx, eventSightingsSQL, city)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query event sightings for %s", city)
	}
	defer rows.Close()

	var out []venue.EventSighting
	for rows.Next() {
		var (
			e        venue.EventSighting
			lat, lon *float64
		)
		if err := rows.Scan(&e.EventID, &e.VenueName, &e.SourceURL, &e.Address, &lat, &lon, &e.StartsAt); err != nil {
			return nil, eris.Wrap(err, "store: scan event sighting")
		}
		if lat != nil && lon != nil {
			e.Location = &venue.Point{Lat: *lat, Lon: *lon}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate event sightings")
	}
	return out, nil
}
