package finality

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusFinalityFinalized     prometheus.Counter
	prometheusFinalityEquivocations prometheus.Counter
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusFinalityFinalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "finality",
			Name:      "finalized",
			Help:      "Number of blocks finalized",
		},
	)

	prometheusFinalityEquivocations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "finality",
			Name:      "equivocations",
			Help:      "Number of equivocations detected",
		},
	)
}
