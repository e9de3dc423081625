package p2p

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusP2PPeers    prometheus.Gauge
	prometheusP2PMessages *prometheus.CounterVec
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusP2PPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bitcell",
			Subsystem: "p2p",
			Name:      "peers",
			Help:      "Number of connected peers",
		},
	)

	prometheusP2PMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "p2p",
			Name:      "messages",
			Help:      "Number of messages received, by type",
		},
		[]string{"type"},
	)
}
