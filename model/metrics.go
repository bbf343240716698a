// Package model holds the wire-facing domain types of the bridge: parsed
// transactions and InstantSend locks, the BIP37 match filter that scopes a
// gateway subscription, and the seen-filter that dedupes re-delivered
// transactions. This file contains the Prometheus metrics for the seen
// filter.
package model

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total membership queries against the seen filter
	prometheusSeenFilterQueries prometheus.Gauge
	// Queries that hit, i.e. transactions dropped as duplicates
	prometheusSeenFilterDuplicates prometheus.Gauge
	// Keys newly inserted, i.e. transactions passed through
	prometheusSeenFilterInserts prometheus.Gauge
)

var (
	// prometheusMetricsInitOnce guards registration: registering the same
	// metric twice panics, and the filter is constructed per subscription.
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusSeenFilterQueries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditbridge",
			Subsystem: "seen_filter",
			Name:      "queries",
			Help:      "Number of membership queries against the seen filter",
		},
	)

	prometheusSeenFilterDuplicates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditbridge",
			Subsystem: "seen_filter",
			Name:      "duplicates",
			Help:      "Number of transactions dropped as duplicates",
		},
	)

	prometheusSeenFilterInserts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditbridge",
			Subsystem: "seen_filter",
			Name:      "inserts",
			Help:      "Number of new keys inserted into the seen filter",
		},
	)
}
