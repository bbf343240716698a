package bridge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusBridgeBroadcasts    *prometheus.CounterVec
	prometheusBridgeWatchSessions *prometheus.CounterVec
	prometheusBridgeCredits       *prometheus.CounterVec
	prometheusBridgeFaucetGrants  *prometheus.CounterVec
	prometheusBridgeNotifications *prometheus.CounterVec
	prometheusBridgeWSClients     prometheus.Gauge
)

var (
	prometheusMetricsInitOnce sync.Once
)

// only init the metrics once
func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusBridgeBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "bridge",
			Name:      "broadcasts",
			Help:      "Number of broadcast-and-wait-lock requests by outcome",
		},
		[]string{"outcome"},
	)

	prometheusBridgeWatchSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "bridge",
			Name:      "watch_sessions",
			Help:      "Number of deposit watch sessions by outcome",
		},
		[]string{"outcome"},
	)

	prometheusBridgeCredits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "bridge",
			Name:      "credits",
			Help:      "Number of credit events by outcome",
		},
		[]string{"outcome"},
	)

	prometheusBridgeFaucetGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "bridge",
			Name:      "faucet_grants",
			Help:      "Number of faucet funding requests by outcome",
		},
		[]string{"outcome"},
	)

	prometheusBridgeNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "bridge",
			Name:      "notifications",
			Help:      "Number of hub notifications by delivery status",
		},
		[]string{"status"},
	)

	prometheusBridgeWSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditbridge",
			Subsystem: "bridge",
			Name:      "ws_clients",
			Help:      "Number of connected websocket clients",
		},
	)
}
