package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MatchmakingMetrics records the counters the scheduler emits. Backed by
// prometheus in production; tests pass a throwaway registry.
type MatchmakingMetrics interface {
	SetQueueDepth(depth int)
	MatchCreated(trigger string)
	ObserveSweepDuration(elapsed time.Duration)
	SearchTimeout()
	NotificationFailure()
}

type prometheusMetrics struct {
	queueDepth    prometheus.Gauge
	matchesTotal  *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	timeoutsTotal prometheus.Counter
	notifyFailed  prometheus.Counter
}

func NewMetrics(registry *prometheus.Registry) MatchmakingMetrics {
	m := &prometheusMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchmaking_queue_depth",
			Help: "Number of users currently waiting in the matchmaking queue.",
		}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchmaking_matches_created_total",
			Help: "Matches created, labeled by trigger (request or sweep).",
		}, []string{"trigger"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchmaking_sweep_duration_seconds",
			Help:    "Duration of a full periodic sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchmaking_search_timeouts_total",
			Help: "Users dequeued after exceeding the search timeout.",
		}),
		notifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchmaking_notification_failures_total",
			Help: "Notification deliveries that failed and were swallowed.",
		}),
	}

	registry.MustRegister(m.queueDepth, m.matchesTotal, m.sweepDuration, m.timeoutsTotal, m.notifyFailed)
	return m
}

func (m *prometheusMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *prometheusMetrics) MatchCreated(trigger string) {
	m.matchesTotal.WithLabelValues(trigger).Inc()
}

func (m *prometheusMetrics) ObserveSweepDuration(elapsed time.Duration) {
	m.sweepDuration.Observe(elapsed.Seconds())
}

func (m *prometheusMetrics) SearchTimeout() {
	m.timeoutsTotal.Inc()
}

func (m *prometheusMetrics) NotificationFailure() {
	m.notifyFailed.Inc()
}
