package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veledger",
		Name:      "operations_total",
		Help:      "Completed ledger operations by kind.",
	}, []string{"op"})

	totalPower = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veledger",
		Name:      "total_voting_power",
		Help:      "Aggregate voting power at the last checkpoint.",
	})
)

// OpDone records one completed ledger operation
func OpDone(op string) {
	opsTotal.WithLabelValues(op).Inc()
}

// SetTotalPower records the aggregate power written by the last checkpoint
func SetTotalPower(power float64) {
	totalPower.Set(power)
}
