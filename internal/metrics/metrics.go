// Package metrics holds Prometheus instruments that are used across the
// client.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveViews = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ponyracer_active_views",
			Help: "Number of mounted form views currently held in memory.",
		})

	ViewMountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ponyracer_view_mount_total",
			Help: "Cumulative number of form views mounted.",
		})

	ViewEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ponyracer_view_evict_total",
			Help: "Cumulative number of form views evicted from the store.",
		})

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ponyracer_submissions_total",
			Help: "Form submissions by form and outcome.",
		}, []string{"form", "outcome"})

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ponyracer_api_request_duration_seconds",
			Help:    "Latency of calls to the Ponyracer API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "code"})
)

func init() {
	prometheus.MustRegister(
		ActiveViews,
		ViewMountTotal,
		ViewEvictTotal,
		SubmissionsTotal,
		APIRequestDuration,
	)
}
