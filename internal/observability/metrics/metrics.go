// Package metrics exposes operation counters for the treasury core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type Metrics struct {
	invoicesIssued    prometheus.Counter
	invoicesRectified prometheus.Counter
	paymentsApplied   prometheus.Counter
	monthlyCloses     prometheus.Counter
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		invoicesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treasury_invoices_issued_total",
			Help: "Invoices issued with a legal number.",
		}),
		invoicesRectified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treasury_invoices_rectified_total",
			Help: "Invoices reversed via a rectification record.",
		}),
		paymentsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treasury_payments_applied_total",
			Help: "Payment receipts applied to issued invoices.",
		}),
		monthlyCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treasury_monthly_closes_total",
			Help: "Periods locked by a monthly close.",
		}),
	}
	registry.MustRegister(m.invoicesIssued, m.invoicesRectified, m.paymentsApplied, m.monthlyCloses)
	return m
}

func (m *Metrics) RecordInvoiceIssued() {
	if m == nil {
		return
	}
	m.invoicesIssued.Inc()
}

func (m *Metrics) RecordInvoiceRectified() {
	if m == nil {
		return
	}
	m.invoicesRectified.Inc()
}

func (m *Metrics) RecordPaymentApplied() {
	if m == nil {
		return
	}
	m.paymentsApplied.Inc()
}

func (m *Metrics) RecordMonthlyClose() {
	if m == nil {
		return
	}
	m.monthlyCloses.Inc()
}

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(New),
)
