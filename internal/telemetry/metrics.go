// Package telemetry exposes the orchestration core's Prometheus metrics
// and sets up OpenTelemetry tracing.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/bus"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/engine"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

const namespace = "bulkflow"

// Metrics records command processing and bus delivery. It implements
// engine.Recorder and bus.Observer.
type Metrics struct {
	commands     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	events       *prometheus.CounterVec
	batches      *prometheus.CounterVec
	redeliveries *prometheus.CounterVec
	deadLetters  *prometheus.CounterVec
}

var (
	_ engine.Recorder = (*Metrics)(nil)
	_ bus.Observer    = (*Metrics)(nil)
)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands processed, by outcome.",
			},
			[]string{"command", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "domain_events_total",
				Help:      "Domain events published.",
			},
			[]string{"event"},
		),
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches closed, by phase and final state.",
			},
			[]string{"phase", "state"},
		),
		redeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "redeliveries_total",
				Help:      "Messages handed to a handler again after a failure.",
			},
			[]string{"topic"},
		),
		deadLetters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dead_letters_total",
				Help:      "Messages given up on after the last attempt.",
			},
			[]string{"topic"},
		),
	}

	for _, c := range []prometheus.Collector{m.commands, m.duration, m.events, m.batches, m.redeliveries, m.deadLetters} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) CommandProcessed(command, outcome string, elapsed time.Duration) {
	m.commands.WithLabelValues(command, outcome).Inc()
	if outcome == engine.OutcomeOK {
		m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) DomainEventEmitted(name string) {
	m.events.WithLabelValues(name).Inc()
}

func (m *Metrics) BatchClosed(phase model.Phase, state model.BatchState) {
	m.batches.WithLabelValues(string(phase), string(state)).Inc()
}

func (m *Metrics) Redelivered(topic string) {
	m.redeliveries.WithLabelValues(topic).Inc()
}

func (m *Metrics) DeadLettered(topic string) {
	m.deadLetters.WithLabelValues(topic).Inc()
}

// Handler serves the metrics of g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
