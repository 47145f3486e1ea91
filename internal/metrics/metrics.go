package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendwatch",
			Name:      "refresh_sessions_total",
			Help:      "Refresh sessions by kind and terminal state.",
		},
		[]string{"kind", "state"},
	)

	backendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sendwatch",
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request latency by endpoint and outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "outcome"},
	)

	statsChanged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sendwatch",
			Name:      "stats_changed_total",
			Help:      "Tasks whose statistics changed after a bulk refresh.",
		},
	)

	snapshotTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sendwatch",
			Name:      "snapshot_tasks",
			Help:      "Number of tasks in the current snapshot.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sendwatch",
			Name:      "console_http_requests_total",
			Help:      "Console HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(refreshes, backendDuration, statsChanged, snapshotTasks, httpRequests)
	})
}

// ObserveRefresh counts a finished refresh session.
func ObserveRefresh(kind, state string) {
	refreshes.WithLabelValues(kind, state).Inc()
}

// ObserveBackend records the latency of one backend call.
func ObserveBackend(endpoint, outcome string, d time.Duration) {
	backendDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

// AddStatsChanged adds n changed tasks.
func AddStatsChanged(n int) {
	if n > 0 {
		statsChanged.Add(float64(n))
	}
}

// SetSnapshotTasks publishes the size of the current snapshot.
func SetSnapshotTasks(n int) {
	snapshotTasks.Set(float64(n))
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
