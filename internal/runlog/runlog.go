// Package runlog records ingestion runs and their structured errors in
// ingestion_runs / ingestion_errors.
package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/db"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

var errorColumns = []string{"run_id", "stage", "source", "kind", "message", "context"}

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("runlog: run not found")

// Recorder provides read/write access to the run tables.
type Recorder struct {
	pool  db.Pool
	now   func() time.Time
	newID func() string
}

// NewRecorder creates a Recorder backed by the given pool.
func NewRecorder(pool db.Pool) *Recorder {
	return &Recorder{
		pool:  pool,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Start opens a RUNNING run for the city and returns it.
func (r *Recorder) Start(ctx context.Context, city string, runType venue.RunType) (*venue.Run, error) {
	run := &venue.Run{
		ID:        r.newID(),
		City:      city,
		Type:      runType,
		Status:    venue.StatusRunning,
		StartedAt: r.now().UTC(),
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ingestion_runs (id, city, run_type, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.City, string(run.Type), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: start run for %s", city)
	}
	return run, nil
}

// Finish writes the final status, stats and errors of a run in one
// transaction. A run can be finished once; afterwards it is immutable.
func (r *Recorder) Finish(ctx context.Context, run *venue.Run) error {
	if run.Status == venue.StatusRunning || run.Status == "" {
		return eris.Errorf("runlog: finish run %s with non-final status %q", run.ID, run.Status)
	}

	var statsJSON []byte
	if run.Stats != nil {
		var err error
		if statsJSON, err = json.Marshal(run.Stats); err != nil {
			return eris.Wrap(err, "runlog: marshal stats")
		}
	}

	rows := make([][]any, 0, len(run.Errors))
	for _, e := range run.Errors {
		var ctxJSON []byte
		if len(e.Context) > 0 {
			var err error
			if ctxJSON, err = json.Marshal(e.Context); err != nil {
				return eris.Wrap(err, "runlog: marshal error context")
			}
		}
		rows = append(rows, []any{run.ID, e.Stage, e.Source, string(e.Kind), e.Message, ctxJSON})
	}

	completed := r.now().UTC()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "runlog: begin finish tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE ingestion_runs
		 SET status = $1, completed_at = $2, stats = $3
		 WHERE id = $4 AND status = 'RUNNING'`,
		string(run.Status), completed, statsJSON, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("runlog: run %s is not running", run.ID)
	}

	if _, err := db.CopyFrom(ctx, tx, "ingestion_errors", errorColumns, rows); err != nil {
		return eris.Wrapf(err, "runlog: write errors for run %s", run.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "runlog: commit finish tx")
	}
	run.CompletedAt = &completed
	return nil
}

// LastSuccessful returns the stats of the most recent SUCCESS or PARTIAL run
// for a city, or nil when there is none.
func (r *Recorder) LastSuccessful(ctx context.Context, city string) (*venue.Stats, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT stats FROM ingestion_runs
		 WHERE city = $1 AND status IN ('SUCCESS', 'PARTIAL') AND stats IS NOT NULL
		 ORDER BY started_at DESC LIMIT 1`,
		city,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "runlog: last successful run for %s", city)
	}

	var stats venue.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, eris.Wrap(err, "runlog: unmarshal stats")
	}
	return &stats, nil
}

// List returns runs newest first. An empty city lists every city.
func (r *Recorder) List(ctx context.Context, city string, limit int) ([]venue.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, city, run_type, status, started_at, completed_at, stats
		 FROM ingestion_runs
		 WHERE $1 = '' OR city = $1
		 ORDER BY started_at DESC
		 LIMIT $2`,
		city, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []venue.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Get returns one run with its errors.
func (r *Recorder) Get(ctx context.Context, id string) (*venue.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	row := r.pool.QueryRow(ctx,
		`SELECT id::text, city, run_type, status, started_at, completed_at, stats
		 FROM ingestion_runs WHERE id = $1`,
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT stage, COALESCE(source, ''), kind, message, context
		 FROM ingestion_errors WHERE run_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: query errors for run %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       venue.RunError
			kind    string
			ctxJSON []byte
		)
		if err := rows.Scan(&e.Stage, &e.Source, &kind, &e.Message, &ctxJSON); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run error")
		}
		e.Kind = venue.ErrorKind(kind)
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &e.Context); err != nil {
				return nil, eris.Wrap(err, "runlog: unmarshal error context")
			}
		}
		run.Errors = append(run.Errors, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "runlog: iterate run errors")
	}
	return run, nil
}

func scanRun(row pgx.Row) (*venue.Run, error) {
	var (
		run       venue.Run
		runType   string
		status    string
		statsJSON []byte
	)
	if err := row.Scan(&run.ID, &run.City, &runType, &status, &run.StartedAt, &run.CompletedAt, &statsJSON); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "runlog: scan run")
	}
	run.Type = venue.RunType(runType)
	run.Status = venue.RunStatus(status)
	if len(statsJSON) > 0 {
		run.Stats = &venue.Stats{}
		if err := json.Unmarshal(statsJSON, run.Stats); err != nil {
			return nil, eris.Wrap(err, "runlog: unmarshal stats")
		}
	}
	return &run, nil
}
