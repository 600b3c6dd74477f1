// Package metrics provides Prometheus instrumentation for the dashboard.
//
// It exposes the duration of each pipeline stage (ingest, fit, render,
// package, refit, import), counts of loaded series by source and errors by
// stage and kind, and the number of live sessions. All metrics are served
// on /metrics.
//
// Metrics exposed:
//   - tsdash_stage_seconds: Histogram of pipeline stage duration
//   - tsdash_series_loaded_total: Counter of series loaded by source
//   - tsdash_series_length: Histogram of loaded series lengths
//   - tsdash_errors_total: Counter of errors by stage and kind
//   - tsdash_refits_coalesced_total: Counter of refits served by an in-flight call
//   - tsdash_sessions: Gauge of sessions held by the in-memory store
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage labels.
const (
	StageIngest  = "ingest"
	StageFit     = "fit"
	StageRender  = "render"
	StagePackage = "package"
	StageRefit   = "refit"
	StageImport  = "import"
	StageSample  = "sample"
)

// Metrics holds all Prometheus metrics for the dashboard.
type Metrics struct {
	StageSeconds    *prometheus.HistogramVec
	SeriesLoaded    *prometheus.CounterVec
	SeriesLength    prometheus.Histogram
	ErrorsTotal     *prometheus.CounterVec
	RefitsCoalesced prometheus.Counter
	Sessions        prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tsdash_stage_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		SeriesLoaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsdash_series_loaded_total",
			Help: "Total number of series loaded by source",
		}, []string{"source"}),

		SeriesLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsdash_series_length",
			Help:    "Number of observations in loaded series",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tsdash_errors_total",
			Help: "Total number of errors by stage and kind",
		}, []string{"stage", "kind"}),

		RefitsCoalesced: f.NewCounter(prometheus.CounterOpts{
			Name: "tsdash_refits_coalesced_total",
			Help: "Refits answered by an identical refit already in flight",
		}),

		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "tsdash_sessions",
			Help: "Number of sessions held in memory",
		}),
	}
}

// RecordStage records the time spent in a pipeline stage.
func (m *Metrics) RecordStage(stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage).Observe(seconds)
}

// RecordSeries records a loaded series.
func (m *Metrics) RecordSeries(source string, length int) {
	m.SeriesLoaded.WithLabelValues(source).Inc()
	m.SeriesLength.Observe(float64(length))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(stage, kind string) {
	m.ErrorsTotal.WithLabelValues(stage, kind).Inc()
}

// RecordCoalescedRefit counts a refit that shared an in-flight result.
func (m *Metrics) RecordCoalescedRefit() {
	m.RefitsCoalesced.Inc()
}

// SetSessions sets the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	m.Sessions.Set(float64(n))
}
