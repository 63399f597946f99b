package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/graph"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/metrics"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/sources"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/store"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/pkg/geocode"
)

// RunRecorder opens and finalizes run records.
type RunRecorder interface {
	PreviousStats
	Start(ctx context.Context, city string, runType venue.RunType) (*venue.Run, error)
	Finish(ctx context.Context, run *venue.Run) error
}

// Deps are the collaborators of the default stage list.
type Deps struct {
	Store          store.Store
	Runs           RunRecorder
	Sources        *sources.Registry
	Graph          graph.Writer
	Metrics        *metrics.Metrics
	Geocoder       geocode.Client
	MaxGeocodes    int
	GeocodeRetries int
	Breakers       *resilience.Breakers
	Locate         LocatorFunc
	MatchThreshold float64
}

// Pipeline folds a State through its stages and finalizes the run.
type Pipeline struct {
	runs    RunRecorder
	metrics *metrics.Metrics
	stages  []Stage
	now     func() time.Time
}

// New builds the standard pipeline: collect, geocode, normalize, match,
// write, heat, quality.
func New(d Deps) *Pipeline {
	return NewWithStages(d.Runs, d.Metrics,
		Collect{Sources: d.Sources},
		Geocode{
			Client:     d.Geocoder,
			MaxLookups: d.MaxGeocodes,
			Retry:      resilience.SourceRetryConfig(d.GeocodeRetries),
			Breaker:    d.Breakers.Get(GeocodeSource),
		},
		Normalize{Locate: d.Locate},
		Match{Store: d.Store, Threshold: d.MatchThreshold},
		Write{Store: d.Store, Graph: d.Graph},
		Heat{Store: d.Store},
		Quality{Runs: d.Runs},
	)
}

// NewWithStages builds a pipeline over an explicit stage list.
func NewWithStages(runs RunRecorder, m *metrics.Metrics, stages ...Stage) *Pipeline {
	return &Pipeline{runs: runs, metrics: m, stages: stages, now: time.Now}
}

// Stages returns the stage list in execution order.
func (p *Pipeline) Stages() []Stage {
	return p.stages
}

// Run executes one ingestion run for city. The only error that prevents a
// run from being recorded is failing to open the run record. A stage that
// errors or panics ends the fold and the run is finalized FAILED; the
// returned error is then nil unless finalizing itself failed.
func (p *Pipeline) Run(ctx context.Context, city venue.City, runType venue.RunType) (State, error) {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("city", city.Name), zap.String("run_type", string(runType)))

	run, err := p.runs.Start(ctx, city.Name, runType)
	if err != nil {
		return State{}, eris.Wrapf(err, "pipeline: open run for %s", city.Name)
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started")

	s := State{
		Run:     run,
		City:    city,
		RunType: runType,
		Now:     p.now().UTC(),
		Stats:   venue.Stats{SourceCounts: make(map[string]int)},
	}

	failed := false
	for _, stage := range p.stages {
		start := time.Now()
		next, stageErr := p.runStage(ctx, stage, s)
		elapsed := time.Since(start)
		p.metrics.ObserveStage(stage.Name(), elapsed)

		if stageErr != nil {
			log.Error("pipeline: stage failed", zap.String("stage", stage.Name()), zap.Duration("elapsed", elapsed), zap.Error(stageErr))
			s.addError(stage.Name(), "", venue.ErrInternal, stageErr.Error(), nil)
			failed = true
			break
		}
		s = next
		log.Info("pipeline: stage complete", zap.String("stage", stage.Name()), zap.Duration("elapsed", elapsed))
	}

	stats := s.Stats
	run.Stats = &stats
	run.Errors = s.Errors
	run.Status = Status(s, failed)
	if err := p.runs.Finish(ctx, run); err != nil {
		return s, eris.Wrapf(err, "pipeline: finalize run %s", run.ID)
	}
	p.metrics.RecordRun(run)

	log.Info("pipeline: run finished",
		zap.String("status", string(run.Status)),
		zap.Int("raw", stats.RawTotal),
		zap.Int("candidates", stats.NormalizedTotal),
		zap.Int("created", stats.VenuesCreated),
		zap.Int("updated", stats.VenuesUpdated),
		zap.Int("errors", len(run.Errors)),
	)
	return s, nil
}

// runStage invokes one stage, turning a panic into an error.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, s State) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("pipeline: stage panicked",
				zap.String("stage", stage.Name()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = eris.New(fmt.Sprintf("stage %s panicked: %v", stage.Name(), r))
		}
	}()
	return stage.Run(ctx, s)
}
