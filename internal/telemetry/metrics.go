// Package telemetry holds the Prometheus metrics registry for the
// adaptive learning core: a struct of typed Prometheus collectors
// constructed once and passed by reference into the components that
// report against it.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the adaptive core reports.
type Registry struct {
	RatingDelta      *prometheus.HistogramVec
	RatingUpdates    *prometheus.CounterVec
	SelectionLatency prometheus.Histogram
	SelectionsServed *prometheus.CounterVec
	GateEvaluations  *prometheus.CounterVec
	XPAwarded        prometheus.Histogram
	LevelUps         *prometheus.CounterVec
	ReviewsProcessed *prometheus.CounterVec
	BreakerTrips     *prometheus.CounterVec
}

// NewRegistry constructs a Registry with all collectors defined, ready
// to be registered against a prometheus.Registerer.
func NewRegistry() *Registry {
	return &Registry{
		RatingDelta: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gmatwiz_rating_delta",
				Help:    "Distribution of rating deltas applied per attempt, by scope type",
				Buckets: []float64{-48, -24, -12, -6, -1, 1, 6, 12, 24, 48},
			},
			[]string{"scope_type"},
		),
		RatingUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmatwiz_rating_updates_total",
				Help: "Total number of rating updates applied, by scope type",
			},
			[]string{"scope_type"},
		),
		SelectionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gmatwiz_selection_duration_seconds",
				Help:    "Duration of question selection calls",
				Buckets: prometheus.DefBuckets,
			},
		),
		SelectionsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmatwiz_selections_served_total",
				Help: "Total number of questions served, by mode and reason",
			},
			[]string{"mode", "reason"},
		),
		GateEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmatwiz_gate_evaluations_total",
				Help: "Total number of gate evaluations, by gate id and status",
			},
			[]string{"gate_id", "status"},
		),
		XPAwarded: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gmatwiz_xp_awarded",
				Help:    "Distribution of XP awarded per attempt",
				Buckets: []float64{0, 5, 10, 15, 20, 30, 45, 60},
			},
		),
		LevelUps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmatwiz_level_ups_total",
				Help: "Total number of level-up events, by resulting level",
			},
			[]string{"to_level"},
		),
		ReviewsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmatwiz_reviews_processed_total",
				Help: "Total number of SM-2 review transitions, by quality grade",
			},
			[]string{"quality_bucket"},
		),
		BreakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gmatwiz_repo_breaker_trips_total",
				Help: "Total number of repository circuit breaker trips, by repository name",
			},
			[]string{"repo"},
		),
	}
}

// MustRegister registers every collector against reg, panicking on
// duplicate registration.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		r.RatingDelta, r.RatingUpdates, r.SelectionLatency, r.SelectionsServed,
		r.GateEvaluations, r.XPAwarded, r.LevelUps, r.ReviewsProcessed, r.BreakerTrips,
	)
}
