package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpf",
		Name:      "matching_runs_total",
		Help:      "Total number of matching runs by result",
	}, []string{"result"})

	MatchingRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpf",
		Name:      "matching_run_duration_seconds",
		Help:      "Duration of a full matching run",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	MatchesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpf",
		Name:      "matches_recorded_total",
		Help:      "Total number of match facts written to the ledger",
	}, []string{"method"})

	MatchesDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpf",
		Name:      "matches_duplicate_total",
		Help:      "Total number of matches skipped because the fact already existed",
	}, []string{"method"})

	CandidateFaceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpf",
		Name:      "candidate_face_failures_total",
		Help:      "Total number of candidate photos without a usable face embedding",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpf",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpf",
		Name:      "notifications_total",
		Help:      "Total number of operator notifications created",
	}, []string{"level"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpf",
		Name:      "queue_depth",
		Help:      "Number of pending match tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mpf",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpf",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
