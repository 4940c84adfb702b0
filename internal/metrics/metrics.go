package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trial, poll and transport metrics, partitioned by scenario or method.

var (
	// Trials
	TrialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convergence",
		Subsystem: "trial",
		Name:      "outcomes_total",
		Help:      "Total trial outcomes by final status",
	}, []string{"scenario", "status"})

	ConvergenceSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convergence",
		Subsystem: "trial",
		Name:      "convergence_seconds",
		Help:      "Time from first poll attempt until the convergence predicate held",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"scenario"})

	WriteSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convergence",
		Subsystem: "trial",
		Name:      "write_seconds",
		Help:      "Time spent issuing prerequisite writes and deletes",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"scenario"})

	WinnersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convergence",
		Subsystem: "trial",
		Name:      "winners_total",
		Help:      "Concurrent-write trials by winning writer",
	}, []string{"scenario", "winner"})

	// Poller
	PollAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convergence",
		Subsystem: "poller",
		Name:      "attempts",
		Help:      "Sample rounds issued per poll session",
		Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100, 250, 600},
	}, []string{"scenario"})

	PollTransientErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convergence",
		Subsystem: "poller",
		Name:      "transient_errors_total",
		Help:      "Transport errors absorbed by the poll loop",
	}, []string{"scenario"})

	// Transport
	TransportRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convergence",
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "Storage requests by method, region and status class",
	}, []string{"method", "region", "status"})

	TransportLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convergence",
		Subsystem: "transport",
		Name:      "request_duration_seconds",
		Help:      "Storage request round-trip time",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "region"})
)
