package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/db"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

var (
	signalUpsert = db.UpsertConfig{
		Table:        "venue_signals",
		Columns:      []string{"venue_id", "signal_type", "time_window", "window_start", "value", "updated_at"},
		ConflictKeys: []string{"venue_id", "signal_type", "time_window", "window_start"},
	}
	heatUpsert = db.UpsertConfig{
		Table:        "venue_heat_index",
		Columns:      []string{"venue_id", "score", "components", "computed_at"},
		ConflictKeys: []string{"venue_id"},
	}
)

const latestSignalsSQL = `SELECT DISTINCT ON (s.venue_id, s.signal_type)
	s.venue_id::text, s.signal_type, s.value
FROM venue_signals s
JOIN venues v ON v.id = s.venue_id
WHERE v.city = $1 AND v.active AND s.time_window = $2
ORDER BY s.venue_id, s.signal_type, s.window_start DESC`

// WindowStart truncates t to the start of its window in UTC. Weeks start on
// Monday.
func WindowStart(t time.Time, w venue.Window) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch w {
	case venue.WindowHourly:
		return t.Truncate(time.Hour)
	case venue.WindowDaily:
		return day
	case venue.WindowMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
}

// UpsertSignals implements Store.
func (s *PostgresStore) UpsertSignals(ctx context.Context, signals []venue.Signal) (int64, error) {
	now := s.now().UTC()
	rows := make([][]any, 0, len(signals))
	for _, sig := range signals {
		rows = append(rows, []any{
			sig.VenueID, string(sig.Type), string(sig.Window), sig.WindowStart.UTC(), sig.Value, now,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, signalUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "store: upsert signals")
	}
	return n, nil
}

// LatestSignals implements Store.
func (s *PostgresStore) LatestSignals(ctx context.Context, city string, window venue.Window) (map[string]SignalSet, error) {
	rows, err := s.pool.Query(ctx, latestSignalsSQL, city, string(window))
	if err != nil {
		return nil, eris.Wrapf(err, "store: query latest signals for %s", city)
	}
	defer rows.Close()

	out := make(map[string]SignalSet)
	for rows.Next() {
		var (
			id, typ string
			value   float64
		)
		if err := rows.Scan(&id, &typ, &value); err != nil {
			return nil, eris.Wrap(err, "store: scan signal")
		}
		set, ok := out[id]
		if !ok {
			set = make(SignalSet)
			out[id] = set
		}
		set[venue.SignalType(typ)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate signals")
	}
	return out, nil
}

// UpsertHeat implements Store.
func (s *PostgresStore) UpsertHeat(ctx context.Context, heat []venue.HeatIndex) (int64, error) {
	rows := make([][]any, 0, len(heat))
	for _, h := range heat {
		comp, err := json.Marshal(h.Components)
		if err != nil {
			return 0, eris.Wrapf(err, "store: marshal heat components for %s", h.VenueID)
		}
		rows = append(rows, []any{h.VenueID, h.Score, comp, h.ComputedAt.UTC()})
	}
	n, err := db.BulkUpsert(ctx, s.pool, heatUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "store: upsert heat index")
	}
	return n, nil
}
