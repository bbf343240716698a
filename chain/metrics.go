package chain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusGatewayFramesReceived      prometheus.Counter
	prometheusGatewayTransactionsRelayed prometheus.Counter
	prometheusGatewayTransactionsDeduped prometheus.Counter
	prometheusGatewayLocksRelayed        prometheus.Counter
	prometheusGatewayBroadcasts          prometheus.Counter
	prometheusGatewaySubscriptions       prometheus.Gauge
)

var (
	// prometheusMetricsInitOnce guards registration: registering the same
	// metric twice panics, and clients are constructed per deposit call.
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusGatewayFramesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "gateway",
			Name:      "frames_received",
			Help:      "Number of frames read from the gateway websocket",
		},
	)

	prometheusGatewayTransactionsRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "gateway",
			Name:      "transactions_relayed",
			Help:      "Number of matched transactions delivered to streams",
		},
	)

	prometheusGatewayTransactionsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "gateway",
			Name:      "transactions_deduped",
			Help:      "Number of re-delivered transactions dropped by the seen filter",
		},
	)

	prometheusGatewayLocksRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "gateway",
			Name:      "locks_relayed",
			Help:      "Number of InstantSend lock payloads delivered to streams",
		},
	)

	prometheusGatewayBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creditbridge",
			Subsystem: "gateway",
			Name:      "broadcasts",
			Help:      "Number of raw transactions submitted through the gateway",
		},
	)

	prometheusGatewaySubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creditbridge",
			Subsystem: "gateway",
			Name:      "subscriptions",
			Help:      "Number of currently active stream subscriptions",
		},
	)
}
