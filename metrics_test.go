package gpionet

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func assertFloats(t testing.TB, got, want float64) {
	t.Helper()

	if got != want {
		t.Errorf("got: %f, want: %f", got, want)
	}
}

func prometheusRegistry(t testing.TB) *prometheus.Registry {
	t.Helper()

	return prometheus.NewRegistry()
}

func counterValue(t testing.TB, c prometheus.Collector) float64 {
	t.Helper()

	return testutil.ToFloat64(c)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	m.observeCommand(OpDelay, time.Now(), true)
	m.addBytesWritten(10)
	m.connectionOpened()
	m.connectionClosed("closed")
	m.eventDropped()
}

func TestConnectionMetrics(t *testing.T) {
	m := NewMetrics(prometheusRegistry(t))

	m.connectionOpened()
	assertFloats(t, counterValue(t, m.activeConnection), 1)

	m.connectionClosed("transport")
	assertFloats(t, counterValue(t, m.activeConnection), 0)
	assertFloats(t, counterValue(t, m.connectionsTotal), 1)
	assertFloats(t, counterValue(t, m.connectionEnds.WithLabelValues("transport")), 1)
}

func TestCommandFailureMetrics(t *testing.T) {
	m := NewMetrics(prometheusRegistry(t))

	m.observeCommand(OpSetPinSingle, time.Now(), true)
	m.observeCommand(OpSetPinSingle, time.Now(), false)

	assertFloats(t, counterValue(t, m.commandsTotal.WithLabelValues("SET_PIN_SINGLE")), 2)
	assertFloats(t, counterValue(t, m.commandFailures.WithLabelValues("SET_PIN_SINGLE")), 1)
}
