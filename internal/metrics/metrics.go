// Package metrics holds the agent's Prometheus collectors.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Hit dispatch outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Metrics groups the collectors shared by the server and transports.
type Metrics struct {
	SignalsReceived *prometheus.CounterVec
	HitsDispatched  *prometheus.CounterVec
	ActivePages     prometheus.Gauge
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignalsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsetrace",
			Subsystem: "agent",
			Name:      "signals_received_total",
			Help:      "Page signals received from the browser, by type",
		}, []string{"type"}),
		HitsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsetrace",
			Subsystem: "agent",
			Name:      "hits_dispatched_total",
			Help:      "Hits handed to a transport, by transport and outcome",
		}, []string{"transport", "outcome"}),
		ActivePages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "browsetrace",
			Subsystem: "agent",
			Name:      "active_pages",
			Help:      "Pages currently instrumented",
		}),
	}
	if reg == nil {
		return m
	}

	m.SignalsReceived = register(reg, m.SignalsReceived)
	m.HitsDispatched = register(reg, m.HitsDispatched)
	m.ActivePages = register(reg, m.ActivePages)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}

// HitOutcome counts one hit for transport.
func (m *Metrics) HitOutcome(transport, outcome string) {
	if m == nil {
		return
	}
	m.HitsDispatched.With(prometheus.Labels{"transport": transport, "outcome": outcome}).Inc()
}

// Signal counts one received signal.
func (m *Metrics) Signal(signalType string) {
	if m == nil {
		return
	}
	m.SignalsReceived.With(prometheus.Labels{"type": signalType}).Inc()
}
