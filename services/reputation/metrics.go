package reputation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusReputationOutcomes *prometheus.CounterVec
	prometheusReputationBans     prometheus.Counter
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusReputationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "reputation",
			Name:      "outcomes",
			Help:      "Number of tournament outcomes recorded, by kind",
		},
		[]string{"outcome"},
	)

	prometheusReputationBans = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "reputation",
			Name:      "bans",
			Help:      "Number of miners crossing the ban threshold",
		},
	)
}
