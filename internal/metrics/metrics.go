// Package metrics holds the Prometheus collectors for forecast runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	FitsTotal         *prometheus.CounterVec
	FitDuration       *prometheus.HistogramVec
	CategoriesSkipped *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attritioncast_runs_total",
				Help: "Forecast runs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		FitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attritioncast_fits_total",
				Help: "Per-category model fits by model and outcome",
			},
			[]string{"model", "outcome"},
		),
		FitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "attritioncast_fit_duration_seconds",
				Help:    "Wall time of a single category fit",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"model"},
		),
		CategoriesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "attritioncast_categories_skipped_total",
				Help: "Categories dropped from a result because their fit failed",
			},
			[]string{"mode"},
		),
	}
}

// ObserveFit records one fit outcome. Nil receivers are ignored so callers
// can run without metrics.
func (m *Metrics) ObserveFit(model string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.FitsTotal.WithLabelValues(model, outcome).Inc()
	m.FitDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveRun records one run outcome and the number of skipped categories.
func (m *Metrics) ObserveRun(mode string, skipped int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RunsTotal.WithLabelValues(mode, outcome).Inc()
	if skipped > 0 {
		m.CategoriesSkipped.WithLabelValues(mode).Add(float64(skipped))
	}
}
