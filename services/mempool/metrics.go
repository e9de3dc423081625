package mempool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusMempoolAdmitted prometheus.Counter
	prometheusMempoolRejected prometheus.Counter
	prometheusMempoolEvicted  prometheus.Counter
	prometheusMempoolSize     prometheus.Gauge
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusMempoolAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "mempool",
			Name:      "admitted",
			Help:      "Number of transactions admitted",
		},
	)

	prometheusMempoolRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "mempool",
			Name:      "rejected",
			Help:      "Number of transactions rejected at admission",
		},
	)

	prometheusMempoolEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "mempool",
			Name:      "evicted",
			Help:      "Number of transactions evicted over capacity",
		},
	)

	prometheusMempoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bitcell",
			Subsystem: "mempool",
			Name:      "size",
			Help:      "Number of transactions pending",
		},
	)
}
