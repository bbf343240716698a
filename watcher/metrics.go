package watcher

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusWatcherLockWaits       *prometheus.CounterVec
	prometheusWatcherDepositWaits    *prometheus.CounterVec
	prometheusWatcherPayloadsSkipped prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

// only init the metrics once
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusWatcherLockWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "watcher",
			Name:      "lock_waits",
			Help:      "Number of instant lock waits by outcome",
		},
		[]string{"outcome"},
	)

	prometheusWatcherDepositWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "watcher",
			Name:      "deposit_waits",
			Help:      "Number of deposit waits by outcome",
		},
		[]string{"outcome"},
	)

	prometheusWatcherPayloadsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "watcher",
			Name:      "payloads_skipped",
			Help:      "Number of stream payloads skipped because they did not decode",
		},
	)
}
