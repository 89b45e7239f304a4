// Package metrics exposes Prometheus counters for the metering engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

const (
	TickOutcomeDeducted  = "deducted"
	TickOutcomeExhausted = "exhausted"
	TickOutcomeOrphaned  = "orphaned"
	TickOutcomeSkipped   = "skipped"
)

// Metering captures metering engine health signals.
type Metering struct {
	ticks          *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	unitsDeducted  prometheus.Counter
}

func NewMetering(reg prometheus.Registerer) *Metering {
	m := &Metering{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditflow",
			Subsystem: "metering",
			Name:      "ticks_total",
			Help:      "Deduction ticks by outcome.",
		}, []string{"outcome"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "creditflow",
			Subsystem: "metering",
			Name:      "sessions_active",
			Help:      "Locally scheduled deduction timers.",
		}),
		unitsDeducted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditflow",
			Subsystem: "metering",
			Name:      "units_deducted_total",
			Help:      "Credits deducted by this process.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ticks, m.sessionsActive, m.unitsDeducted)
	}
	return m
}

func (m *Metering) IncTick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

func (m *Metering) IncDeducted() {
	if m == nil {
		return
	}
	m.unitsDeducted.Inc()
}

func (m *Metering) SetActiveTimers(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer {
	return reg
}

var Module = fx.Module("metrics",
	fx.Provide(NewRegistry),
	fx.Provide(provideRegisterer),
	fx.Provide(NewMetering),
)
