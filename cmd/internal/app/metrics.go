package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes gate admission counters. It satisfies the gate coordinator's
// metrics contract.
type Metrics struct {
	checkins  prometheus.Counter
	checkouts prometheus.Counter
	denied    *prometheus.CounterVec
	inside    prometheus.Gauge
}

// NewMetrics registers gate metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		checkins: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gatepass",
			Name:      "checkins_total",
			Help:      "Successful gate admissions.",
		}),
		checkouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gatepass",
			Name:      "checkouts_total",
			Help:      "Recorded departures.",
		}),
		denied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatepass",
			Name:      "checkins_denied_total",
			Help:      "Denied admissions by reason.",
		}, []string{"reason"}),
		inside: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gatepass",
			Name:      "visitors_inside",
			Help:      "Visitors currently checked in.",
		}),
	}
}

func (m *Metrics) Admitted() {
	m.checkins.Inc()
	m.inside.Inc()
}

func (m *Metrics) Departed() {
	m.checkouts.Inc()
	m.inside.Dec()
}

func (m *Metrics) Denied(reason string) {
	m.denied.WithLabelValues(reason).Inc()
}
