// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are registered once per registry; tests use their own registry.
type Metrics struct {
	Submissions     *prometheus.CounterVec
	SessionsWritten prometheus.Counter
	ReportDuration  *prometheus.HistogramVec
	ReportCache     *prometheus.CounterVec
	UnmarkedHours   prometheus.Counter
	RosterImports   *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "submissions_total",
			Help:      "Attendance submissions by caller role.",
		}, []string{"role"}),
		SessionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "sessions_written_total",
			Help:      "Attendance records written by submissions.",
		}),
		ReportDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollcall",
			Name:      "report_duration_seconds",
			Help:      "Time spent computing reports.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		ReportCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "report_cache_total",
			Help:      "Report cache lookups by result.",
		}, []string{"kind", "result"}),
		UnmarkedHours: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "unmarked_hours_found_total",
			Help:      "Pending hours reported by gap reconciliation.",
		}),
		RosterImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "roster_imports_total",
			Help:      "Roster import messages processed by outcome.",
		}, []string{"outcome"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rollcall",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Submissions,
			m.SessionsWritten,
			m.ReportDuration,
			m.ReportCache,
			m.UnmarkedHours,
			m.RosterImports,
			m.HTTPDuration,
		)
	}
	return m
}
