package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LedgerMetrics counts ledger operations and bulk items by outcome.
type LedgerMetrics struct {
	operations *prometheus.CounterVec
	batchItems *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger counters on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Ledger state transitions by operation and outcome.",
	}, []string{"op", "outcome"})
	batchItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_batch_items_total",
		Help:      "Bulk request items by operation and outcome.",
	}, []string{"op", "outcome"})
	reg.MustRegister(operations, batchItems)
	return &LedgerMetrics{operations: operations, batchItems: batchItems}
}

// ObserveOperation records one single-item ledger operation.
func (m *LedgerMetrics) ObserveOperation(op string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), outcome(err)).Inc()
}

// ObserveBatchItem records one item of a bulk request.
func (m *LedgerMetrics) ObserveBatchItem(op string, err error) {
	if m == nil || m.batchItems == nil {
		return
	}
	m.batchItems.WithLabelValues(normalizeLabel(op), outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
