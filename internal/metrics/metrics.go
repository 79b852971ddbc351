// Package metrics exposes session counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "websole"

var states = []string{"not_started", "running", "exited", "restarting", "closed"}

// Metrics holds the session collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	clients        prometheus.Gauge
	state          *prometheus.GaugeVec
	outputBytes    prometheus.Counter
	inputBytes     prometheus.Counter
	restarts       prometheus.Counter
	spawnFailures  prometheus.Counter
	droppedClients prometheus.Counter
}

// New registers the session collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		clients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients",
			Help:      "Number of attached clients.",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current session state (1 for the active state).",
		}, []string{"state"}),
		outputBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_bytes_total",
			Help:      "Bytes of program output forwarded.",
		}),
		inputBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_bytes_total",
			Help:      "Bytes of client input written to the program.",
		}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Number of program restarts.",
		}),
		spawnFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Number of failed program starts.",
		}),
		droppedClients: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_clients_total",
			Help:      "Clients disconnected because their queue overflowed.",
		}),
	}
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *Metrics) SetState(current string) {
	if m == nil {
		return
	}
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) Output(n int) {
	if m == nil {
		return
	}
	m.outputBytes.Add(float64(n))
}

func (m *Metrics) Input(n int) {
	if m == nil {
		return
	}
	m.inputBytes.Add(float64(n))
}

func (m *Metrics) Restarted() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

func (m *Metrics) SpawnFailed() {
	if m == nil {
		return
	}
	m.spawnFailures.Inc()
}

func (m *Metrics) ClientDropped() {
	if m == nil {
		return
	}
	m.droppedClients.Inc()
}
