package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records sale commits, planning failures, parcel status moves
// and profit report timings. A nil *LedgerMetrics is a valid no-op.
type LedgerMetrics struct {
	salesCommitted prometheus.Counter
	planFailures   *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	reportDuration *prometheus.HistogramVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	salesCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_sales_committed_total",
		Help: "Sales committed with a FIFO deduction plan.",
	})
	planFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_plan_failures_total",
		Help: "Sale plans rejected before or during commit.",
	}, []string{"reason"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_status_transitions_total",
		Help: "Parcel status changes applied to sales.",
	}, []string{"status"})
	reportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_report_duration_seconds",
		Help:    "Time spent fetching and aggregating ledger reports.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})
	reg.MustRegister(salesCommitted, planFailures, transitions, reportDuration)
	return &LedgerMetrics{
		salesCommitted: salesCommitted,
		planFailures:   planFailures,
		transitions:    transitions,
		reportDuration: reportDuration,
	}
}

func (m *LedgerMetrics) IncSaleCommitted() {
	if m == nil || m.salesCommitted == nil {
		return
	}
	m.salesCommitted.Inc()
}

func (m *LedgerMetrics) IncPlanFailure(reason string) {
	if m == nil || m.planFailures == nil {
		return
	}
	m.planFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncTransition(status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status)).Inc()
}

// ObserveReport records the duration for the named report.
func (m *LedgerMetrics) ObserveReport(report string, duration time.Duration) {
	if m == nil || m.reportDuration == nil {
		return
	}
	m.reportDuration.WithLabelValues(normalizeLabel(report)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
