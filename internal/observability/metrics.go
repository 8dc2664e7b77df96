// Package observability holds the Prometheus collectors for the engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_engine"

var (
	RideRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_requests_total", Help: "Ride requests by outcome"},
		[]string{"outcome"},
	)
	DispatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_latency_seconds",
		Help:      "Time from ride request to ride creation",
		Buckets:   prometheus.DefBuckets,
	})
	CandidatesPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dispatch_candidates",
		Help:      "Drivers in the pool snapshot per ride request",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	})

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride state transitions by action and outcome"},
		[]string{"action", "outcome"},
	)
	RatingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_ratings_total", Help: "Ride ratings by outcome"},
		[]string{"outcome"},
	)

	LocationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "location_events_total", Help: "Location change events by result"},
		[]string{"result"},
	)
	RidesMirroredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "driver_locations_mirrored_total",
		Help:      "Driver positions copied into active rides",
	})

	DriversSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drivers_swept_offline_total",
		Help:      "Idle drivers moved to UNAVAILABLE by the sweeper",
	})
	ExpiredRequestsPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expired_requests_purged_total",
		Help:      "Expired REQUESTED rides removed by the sweeper",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
