package tournament

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusTournamentCommitments        prometheus.Counter
	prometheusTournamentReveals            prometheus.Counter
	prometheusTournamentBattles            prometheus.Counter
	prometheusTournamentEmpty              prometheus.Counter
	prometheusTournamentDuplicateKeyImages prometheus.Counter
	prometheusTournamentDuration           prometheus.Histogram
)

var prometheusMetricsInitOnce sync.Once

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusTournamentCommitments = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "tournament",
			Name:      "commitments",
			Help:      "Number of commitments accepted",
		},
	)

	prometheusTournamentReveals = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "tournament",
			Name:      "reveals",
			Help:      "Number of reveals accepted",
		},
	)

	prometheusTournamentBattles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "tournament",
			Name:      "battles",
			Help:      "Number of battles resolved",
		},
	)

	prometheusTournamentEmpty = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "tournament",
			Name:      "empty",
			Help:      "Number of empty tournaments",
		},
	)

	prometheusTournamentDuplicateKeyImages = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bitcell",
			Subsystem: "tournament",
			Name:      "duplicate_key_images",
			Help:      "Number of duplicate key images rejected",
		},
	)

	prometheusTournamentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "bitcell",
			Subsystem: "tournament",
			Name:      "duration_seconds",
			Help:      "Histogram of full tournament duration",
			Buckets:   prometheus.DefBuckets,
		},
	)
}
