// Package metrics exposes Prometheus collectors for refreshes and verdicts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/verify-cli/internal/model"
)

// Metrics implements ingest.Observer and verify.Observer.
type Metrics struct {
	RefreshAttempts *prometheus.CounterVec
	RefreshDuration *prometheus.HistogramVec
	IndexRecords    *prometheus.GaugeVec
	IndexLoadedAt   *prometheus.GaugeVec

	Verdicts        *prometheus.CounterVec
	VerdictDuration *prometheus.HistogramVec
}

// New registers all collectors with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		RefreshAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_refresh_attempts_total",
			Help: "Source refresh attempts by source and outcome",
		}, []string{"source", "outcome"}), // outcome: "success", "unchanged", "failure"

		RefreshDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verify_refresh_duration_seconds",
			Help:    "Duration of source refreshes",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"source"}),

		IndexRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verify_index_records",
			Help: "Records in the installed index per source",
		}, []string{"source"}),

		IndexLoadedAt: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verify_index_loaded_timestamp_seconds",
			Help: "Unix time the installed index was last refreshed",
		}, []string{"source"}),

		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "verify_verdicts_total",
			Help: "Verdicts by verification type and status",
		}, []string{"type", "status"}),

		VerdictDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verify_verdict_duration_seconds",
			Help:    "Time to produce one verdict, including pacing",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		}, []string{"type"}),
	}
}

// RefreshCompleted records one refresh attempt.
func (m *Metrics) RefreshCompleted(a model.RefreshAttempt) {
	if m == nil {
		return
	}
	outcome := "failure"
	switch {
	case a.Success && a.Unchanged:
		outcome = "unchanged"
		m.IndexLoadedAt.WithLabelValues(a.SourceID).Set(float64(a.StartedAt.Add(a.Duration).Unix()))
	case a.Success:
		outcome = "success"
	}
	m.RefreshAttempts.WithLabelValues(a.SourceID, outcome).Inc()
	m.RefreshDuration.WithLabelValues(a.SourceID).Observe(a.Duration.Seconds())
}

// IndexInstalled records a newly published index.
func (m *Metrics) IndexInstalled(sourceID string, records int) {
	if m == nil {
		return
	}
	m.IndexRecords.WithLabelValues(sourceID).Set(float64(records))
	m.IndexLoadedAt.WithLabelValues(sourceID).SetToCurrentTime()
}

// VerdictRecorded records one verdict.
func (m *Metrics) VerdictRecorded(v model.Verdict, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(v.Type, string(v.Status)).Inc()
	m.VerdictDuration.WithLabelValues(v.Type).Observe(elapsed.Seconds())
}
