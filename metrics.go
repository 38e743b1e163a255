package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "eloquentlog"

// Metrics counts identity writes. A nil *Metrics records nothing.
type Metrics struct {
	IdentitiesInserted prometheus.Counter
	VouchersGranted    prometheus.Counter
	VouchersRedeemed   prometheus.Counter
	WriteFailures      *prometheus.CounterVec
}

// NewMetrics registers the counters on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentitiesInserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "user_emails",
			Name:      "inserted_total",
			Help:      "Email identities inserted.",
		}),
		VouchersGranted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "user_emails",
			Name:      "activation_vouchers_granted_total",
			Help:      "Activation vouchers granted.",
		}),
		VouchersRedeemed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "user_emails",
			Name:      "activation_vouchers_redeemed_total",
			Help:      "Activation vouchers redeemed.",
		}),
		WriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "user_emails",
			Name:      "write_failures_total",
			Help:      "Failed identity writes by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) inserted() {
	if m != nil {
		m.IdentitiesInserted.Inc()
	}
}

func (m *Metrics) granted() {
	if m != nil {
		m.VouchersGranted.Inc()
	}
}

func (m *Metrics) redeemed() {
	if m != nil {
		m.VouchersRedeemed.Inc()
	}
}

func (m *Metrics) writeFailed(op string) {
	if m != nil {
		m.WriteFailures.WithLabelValues(op).Inc()
	}
}
