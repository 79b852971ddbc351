package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SetClients(3)
	m.SetState("running")
	m.Output(10)
	m.Input(1)
	m.Restarted()
	m.SpawnFailed()
	m.ClientDropped()
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetClients(2)
	m.Output(5)
	m.Output(7)
	m.Restarted()
	m.SetState("running")

	if got := testutil.ToFloat64(m.clients); got != 2 {
		t.Errorf("expected 2 clients, got %v", got)
	}
	if got := testutil.ToFloat64(m.outputBytes); got != 12 {
		t.Errorf("expected 12 output bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.restarts); got != 1 {
		t.Errorf("expected 1 restart, got %v", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("running")); got != 1 {
		t.Errorf("expected running=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.state.WithLabelValues("exited")); got != 0 {
		t.Errorf("expected exited=0, got %v", got)
	}
}
