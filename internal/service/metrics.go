package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	compensations  *prometheus.CounterVec
	compensatedQty prometheus.Counter
	confirmations  *prometheus.CounterVec
	recalculated   prometheus.Counter
}

// newLedgerMetrics создаёт счётчики; при reg == nil они работают без регистрации.
func newLedgerMetrics(reg prometheus.Registerer) *ledgerMetrics {
	m := &ledgerMetrics{
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: "ledger",
			Name:      "compensation_requests_total",
			Help:      "Compensation requests by result.",
		}, []string{"result"}),
		compensatedQty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: "ledger",
			Name:      "compensated_quantity_total",
			Help:      "Total quantity booked against shortages.",
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: "ledger",
			Name:      "confirmations_total",
			Help:      "Applied item confirmations by kind.",
		}, []string{"kind"}),
		recalculated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fulfillment",
			Subsystem: "ledger",
			Name:      "recalculated_orders_total",
			Help:      "Orders changed by shortage recalculation.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.compensations, m.compensatedQty, m.confirmations, m.recalculated)
	}
	return m
}

func (m *ledgerMetrics) compensation(err error) {
	if err != nil {
		m.compensations.WithLabelValues("rejected").Inc()
		return
	}
	m.compensations.WithLabelValues("committed").Inc()
}
