// Package metrics exposes ingestion run metrics on a dedicated Prometheus
// registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

// Metrics holds the collectors of one process. A nil *Metrics records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunErrors       *prometheus.CounterVec
	SourceRecords   *prometheus.GaugeVec
	StageDuration   *prometheus.HistogramVec
	MatchOutcomes   *prometheus.CounterVec
	VenuesWritten   *prometheus.CounterVec
	LastRunFinished *prometheus.GaugeVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers every collector under namespace on a fresh registry.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_runs_total",
			Help:      "Finalized ingestion runs by city and status",
		}, []string{"city", "status"}),
		RunErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_errors_total",
			Help:      "Errors recorded on ingestion runs by city and kind",
		}, []string{"city", "kind"}),
		SourceRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_records",
			Help:      "Raw records returned by each source in the latest run",
		}, []string{"city", "source"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		MatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_outcomes_total",
			Help:      "Matcher decisions by city and outcome (matched|new|ambiguous)",
		}, []string{"city", "outcome"}),
		VenuesWritten: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "venues_written_total",
			Help:      "Venue writes by city and result (created|updated|conflict|error)",
		}, []string{"city", "result"}),
		LastRunFinished: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the latest run for a city was finalized",
		}, []string{"city", "status"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ops API requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Ops API request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// RegisterRuntime adds the Go and process collectors. Only long-running
// processes need them.
func (m *Metrics) RegisterRuntime() {
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun records a finalized run.
func (m *Metrics) RecordRun(run *venue.Run) {
	if m == nil || run == nil {
		return
	}
	m.RunsTotal.WithLabelValues(run.City, string(run.Status)).Inc()
	for _, e := range run.Errors {
		m.RunErrors.WithLabelValues(run.City, string(e.Kind)).Inc()
	}
	if run.CompletedAt != nil {
		m.LastRunFinished.WithLabelValues(run.City, string(run.Status)).Set(float64(run.CompletedAt.Unix()))
	}

	s := run.Stats
	if s == nil {
		return
	}
	for source, n := range s.SourceCounts {
		m.SourceRecords.WithLabelValues(run.City, source).Set(float64(n))
	}
	m.MatchOutcomes.WithLabelValues(run.City, "matched").Add(float64(s.Matched))
	m.MatchOutcomes.WithLabelValues(run.City, "new").Add(float64(s.New))
	m.MatchOutcomes.WithLabelValues(run.City, "ambiguous").Add(float64(s.AmbiguousMatches))
	m.VenuesWritten.WithLabelValues(run.City, "created").Add(float64(s.VenuesCreated))
	m.VenuesWritten.WithLabelValues(run.City, "updated").Add(float64(s.VenuesUpdated))
	m.VenuesWritten.WithLabelValues(run.City, "conflict").Add(float64(s.ConflictMatches))
	m.VenuesWritten.WithLabelValues(run.City, "error").Add(float64(s.WriteErrors))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// WriteTextfile writes the registry for the node exporter textfile
// collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
