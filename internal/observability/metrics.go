// README: Prometheus metrics for the dispatch engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "assignments_total", Help: "Auto-assignment attempts by outcome"},
		[]string{"outcome"},
	)
	AssignmentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch", Name: "assignment_latency_seconds", Help: "Time to handle one pending booking",
	})
	OffersResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "offers_resolved_total", Help: "Offers leaving pending by final status"},
		[]string{"status"},
	)
	LocationWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "location_writes_total", Help: "Booking position writes by result"},
		[]string{"result"},
	)
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "sweep_runs_total", Help: "Timeout sweeper runs by result"},
		[]string{"result"},
	)
	BookingsTimedOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch", Name: "bookings_timed_out_total", Help: "Bookings cancelled because no driver accepted in time",
	})
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "events_published_total", Help: "Internal bus events by topic"},
		[]string{"topic"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
