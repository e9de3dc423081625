package blockchain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainHeight           prometheus.Gauge
	prometheusBlockProduced         prometheus.Counter
	prometheusBlockProducedDuration prometheus.Histogram
	prometheusBlockAdded            prometheus.Counter
	prometheusBlockAddedDuration    prometheus.Histogram
	prometheusBlockRejected         prometheus.Counter
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bitcell",
			Subsystem: "blockchain",
			Name:      "height",
			Help:      "Current chain height",
		},
	)

	prometheusBlockProduced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "blockchain",
			Name:      "block_produced",
			Help:      "Number of blocks produced",
		},
	)

	prometheusBlockProducedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bitcell",
			Subsystem: "blockchain",
			Name:      "block_produced_duration_seconds",
			Help:      "Histogram of block production time",
			Buckets:   prometheus.DefBuckets,
		},
	)

	prometheusBlockAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "blockchain",
			Name:      "block_added",
			Help:      "Number of blocks added to the chain",
		},
	)

	prometheusBlockAddedDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bitcell",
			Subsystem: "blockchain",
			Name:      "block_added_duration_seconds",
			Help:      "Histogram of block application time",
			Buckets:   prometheus.DefBuckets,
		},
	)

	prometheusBlockRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "blockchain",
			Name:      "block_rejected",
			Help:      "Number of blocks rejected at validation",
		},
	)
}
