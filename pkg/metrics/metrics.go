// Package metrics provides Prometheus metrics for autosync.
// A nil *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes recorded by RecordEvent.
const (
	EventSynced    = "synced"
	EventDebounced = "debounced"
	EventIgnored   = "ignored"
)

// Registry holds all autosync metrics.
type Registry struct {
	reg      *prometheus.Registry
	syncs    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
	watched  prometheus.Gauge
}

// NewRegistry creates a new metrics registry.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosync_sync_total",
			Help: "Sync attempts by project and result.",
		}, []string{"project", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autosync_sync_duration_seconds",
			Help:    "Wall time of the external sync tool.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"project"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autosync_events_total",
			Help: "Filesystem events by project and outcome.",
		}, []string{"project", "outcome"}),
		watched: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autosync_watched_projects",
			Help: "Projects with an active watch registration.",
		}),
	}
	r.reg.MustRegister(r.syncs, r.duration, r.events, r.watched)
	return r
}

// RecordSync records one sync attempt.
func (r *Registry) RecordSync(project string, success bool, d time.Duration) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.syncs.WithLabelValues(project, result).Inc()
	r.duration.WithLabelValues(project).Observe(d.Seconds())
}

// RecordEvent records how a filesystem event was handled.
func (r *Registry) RecordEvent(project, outcome string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(project, outcome).Inc()
}

// SetWatched sets the number of active watch registrations.
func (r *Registry) SetWatched(n int) {
	if r == nil {
		return
	}
	r.watched.Set(float64(n))
}

// SyncCount returns the number of recorded attempts for project with the given result.
func (r *Registry) SyncCount(project string, success bool) float64 {
	if r == nil {
		return 0
	}
	result := "success"
	if !success {
		result = "failure"
	}
	return counterValue(r.syncs.WithLabelValues(project, result))
}

// EventCount returns the number of recorded events for project with outcome.
func (r *Registry) EventCount(project, outcome string) float64 {
	if r == nil {
		return 0
	}
	return counterValue(r.events.WithLabelValues(project, outcome))
}

// Handler returns an HTTP handler serving the registry in Prometheus format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
