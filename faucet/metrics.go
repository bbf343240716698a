package faucet

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusFaucetTokensIssued   prometheus.Counter
	prometheusFaucetFundsRequested prometheus.Counter
	prometheusFaucetRateLimited    prometheus.Counter
)

var (
	prometheusMetricsInitOnce sync.Once
)

// only init the metrics once
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusFaucetTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "faucet",
			Name:      "tokens_issued",
			Help:      "Number of cap tokens obtained from the faucet",
		},
	)

	prometheusFaucetFundsRequested = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "faucet",
			Name:      "funds_requested",
			Help:      "Number of successful faucet funding requests",
		},
	)

	prometheusFaucetRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "faucet",
			Name:      "rate_limited",
			Help:      "Number of faucet responses rejected with status 429",
		},
	)
}
