package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/geo"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/normalize"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

const selectActiveVenuesSQL = `SELECT v.id::text, v.city, v.name, v.normalized_name,
	ST_AsEWKB(v.location::geometry), v.geo_cell,
	COALESCE(v.address, ''), COALESCE(v.neighborhood, ''), v.category, v.subcategories,
	COALESCE(v.price_band, ''), v.capacity,
	COALESCE(v.website, ''), COALESCE(v.phone, ''), COALESCE(v.description, ''),
	COALESCE(v.image_url, ''), COALESCE(v.hours, ''),
	v.active, v.created_at, v.updated_at,
	ARRAY(SELECT a.alias FROM venue_aliases a WHERE a.venue_id = v.id ORDER BY a.alias)
FROM venues v
WHERE v.city = $1 AND v.active
ORDER BY v.id`

// writtenVenueColumns is the persisted row returned by both venue writes.
const writtenVenueColumns = `city, name, COALESCE(neighborhood, ''), category,
	ST_AsEWKB(location::geometry), active`

// insertVenueSQL creates a venue or, when the natural key already exists,
// fills the existing row's gaps exactly like a matched update.
const insertVenueSQL = `INSERT INTO venues (city, name, normalized_name, location, geo_cell,
	address, neighborhood, category, subcategories, price_band, capacity,
	website, phone, description, image_url, hours, accessibility, active)
VALUES ($1, $2, $3, ST_GeomFromEWKB($4)::geography, $5,
	NULLIF($6, ''), NULLIF($7, ''), $8, $9, NULLIF($10, ''), $11,
	NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''), NULLIF($16, ''), $17, $18)
ON CONFLICT (city, normalized_name, geo_cell) DO UPDATE SET
	location      = COALESCE(venues.location, EXCLUDED.location),
	address       = COALESCE(venues.address, EXCLUDED.address),
	neighborhood  = COALESCE(venues.neighborhood, EXCLUDED.neighborhood),
	category      = CASE WHEN venues.category = 'OTHER' THEN EXCLUDED.category ELSE venues.category END,
	subcategories = ARRAY(SELECT DISTINCT unnest(venues.subcategories || EXCLUDED.subcategories)),
	price_band    = COALESCE(venues.price_band, EXCLUDED.price_band),
	capacity      = COALESCE(venues.capacity, EXCLUDED.capacity),
	website       = COALESCE(venues.website, EXCLUDED.website),
	phone         = COALESCE(venues.phone, EXCLUDED.phone),
	description   = COALESCE(venues.description, EXCLUDED.description),
	image_url     = COALESCE(venues.image_url, EXCLUDED.image_url),
	hours         = COALESCE(venues.hours, EXCLUDED.hours),
	accessibility = COALESCE(venues.accessibility, EXCLUDED.accessibility),
	active        = venues.active AND EXCLUDED.active,
	updated_at    = now()
RETURNING id::text, (xmax = 0), ` + writtenVenueColumns

// fillVenueSQL updates a matched venue. Populated columns are kept; only
// gaps are filled. A source reporting the place closed deactivates it.
const fillVenueSQL = `UPDATE venues SET
	location      = COALESCE(location, ST_GeomFromEWKB($2)::geography),
	address       = COALESCE(address, NULLIF($3, '')),
	neighborhood  = COALESCE(neighborhood, NULLIF($4, '')),
	category      = CASE WHEN category = 'OTHER' THEN $5 ELSE category END,
	subcategories = ARRAY(SELECT DISTINCT unnest(subcategories || $6::text[])),
	price_band    = COALESCE(price_band, NULLIF($7, '')),
	capacity      = COALESCE(capacity, $8),
	website       = COALESCE(website, NULLIF($9, '')),
	phone         = COALESCE(phone, NULLIF($10, '')),
	description   = COALESCE(description, NULLIF($11, '')),
	image_url     = COALESCE(image_url, NULLIF($12, '')),
	hours         = COALESCE(hours, NULLIF($13, '')),
	accessibility = COALESCE(accessibility, $14),
	active        = active AND $15,
	updated_at    = now()
WHERE id = $1
RETURNING ` + writtenVenueColumns

const insertSourceSQL = `INSERT INTO venue_sources (venue_id, source, external_id, source_url, confidence, payload)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
ON CONFLICT (source, external_id) DO NOTHING`

const insertAliasSQL = `INSERT INTO venue_aliases (venue_id, alias, normalized_alias)
VALUES ($1, $2, $3)
ON CONFLICT (venue_id, normalized_alias) DO NOTHING`

// ActiveVenues implements Store.
func (s *PostgresStore) ActiveVenues(ctx context.Context, city string) ([]venue.Venue, error) {
	rows, err := s.pool.Query(ctx, selectActiveVenuesSQL, city)
	if err != nil {
		return nil, eris.Wrapf(err, "store: query active venues for %s", city)
	}
	defer rows.Close()

	var out []venue.Venue
	for rows.Next() {
		var (
			v        venue.Venue
			loc      []byte
			category string
			price    string
		)
		if err := rows.Scan(
			&v.ID, &v.City, &v.Name, &v.NormalizedName,
			&loc, &v.GeoCell,
			&v.Address, &v.Neighborhood, &category, &v.Subcategories,
			&price, &v.Capacity,
			&v.Website, &v.Phone, &v.Description,
			&v.ImageURL, &v.Hours,
			&v.Active, &v.CreatedAt, &v.UpdatedAt,
			&v.Aliases,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan venue")
		}
		if v.Location, err = geo.DecodePoint(loc); err != nil {
			return nil, eris.Wrapf(err, "store: decode location of venue %s", v.ID)
		}
		v.Category = venue.ParseCategory(category)
		v.PriceBand = venue.ParsePriceBand(price)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate venues")
	}
	return out, nil
}

// WriteMatch implements Store.
func (s *PostgresStore) WriteMatch(ctx context.Context, m venue.Match) (WriteResult, error) {
	c := m.Candidate
	var res WriteResult

	loc, err := geo.EncodePoint(c.Location)
	if err != nil {
		return res, eris.Wrapf(err, "store: encode location for %q", c.Name)
	}
	var access []byte
	if len(c.Accessibility) > 0 {
		if access, err = json.Marshal(c.Accessibility); err != nil {
			return res, eris.Wrap(err, "store: marshal accessibility")
		}
	}
	subs := c.Subcategories
	if subs == nil {
		subs = []string{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "store: begin venue tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var row writtenVenue
	if m.IsNew() {
		var inserted bool
		err := tx.QueryRow(ctx, insertVenueSQL,
			c.City, c.Name, c.NormalizedName, loc, c.GeoCell,
			c.Address, c.Neighborhood, string(c.Category), subs, string(c.PriceBand), c.Capacity,
			c.Website, c.Phone, c.Description, c.ImageURL, c.Hours, access, c.Active,
		).Scan(append([]any{&res.VenueID, &inserted}, row.dest()...)...)
		if err != nil {
			return res, eris.Wrapf(err, "store: insert venue %q", c.Name)
		}
		res.Created = inserted
		res.Conflict = !inserted
	} else {
		err := tx.QueryRow(ctx, fillVenueSQL,
			m.VenueID, loc, c.Address, c.Neighborhood, string(c.Category), subs, string(c.PriceBand), c.Capacity,
			c.Website, c.Phone, c.Description, c.ImageURL, c.Hours, access, c.Active,
		).Scan(row.dest()...)
		if errors.Is(err, pgx.ErrNoRows) {
			return res, eris.Errorf("store: venue %s not found", m.VenueID)
		}
		if err != nil {
			return res, eris.Wrapf(err, "store: update venue %s", m.VenueID)
		}
		res.VenueID = m.VenueID
	}
	if res.Venue, err = row.venue(res.VenueID); err != nil {
		return res, err
	}

	if res.SourcesAdded, err = insertSources(ctx, tx, res.VenueID, c.Sources); err != nil {
		return res, err
	}
	if res.AliasesAdded, err = insertAliases(ctx, tx, res.VenueID, c.Aliases); err != nil {
		return res, err
	}

	if err := tx.Commit(ctx); err != nil {
		return res, eris.Wrap(err, "store: commit venue tx")
	}
	return res, nil
}

// writtenVenue receives writtenVenueColumns.
type writtenVenue struct {
	city, name, neighborhood, category string
	location                           []byte
	active                             bool
}

func (w *writtenVenue) dest() []any {
	return []any{&w.city, &w.name, &w.neighborhood, &w.category, &w.location, &w.active}
}

func (w *writtenVenue) venue(id string) (venue.Venue, error) {
	loc, err := geo.DecodePoint(w.location)
	if err != nil {
		return venue.Venue{}, eris.Wrapf(err, "store: decode location of venue %s", id)
	}
	return venue.Venue{
		ID:           id,
		City:         w.city,
		Name:         w.name,
		Neighborhood: w.neighborhood,
		Category:     venue.ParseCategory(w.category),
		Location:     loc,
		Active:       w.active,
	}, nil
}

func insertSources(ctx context.Context, tx pgx.Tx, venueID string, raws []venue.RawVenue) (int, error) {
	added := 0
	for _, r := range raws {
		var payload []byte
		if len(r.Payload) > 0 {
			payload = r.Payload
		}
		tag, err := tx.Exec(ctx, insertSourceSQL, venueID, r.Source, r.ExternalID, r.SourceURL, r.Confidence, payload)
		if err != nil {
			return added, eris.Wrapf(err, "store: insert source %s/%s", r.Source, r.ExternalID)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

func insertAliases(ctx context.Context, tx pgx.Tx, venueID string, aliases []string) (int, error) {
	added := 0
	for _, a := range aliases {
		n := normalize.Name(a)
		if n == "" {
			continue
		}
		tag, err := tx.Exec(ctx, insertAliasSQL, venueID, a, n)
		if err != nil {
			return added, eris.Wrapf(err, "store: insert alias %q", a)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}
