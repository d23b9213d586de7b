package gpionet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gpionet"

// Metrics collects daemon counters. A nil *Metrics records nothing.
type Metrics struct {
	commandsTotal    *prometheus.CounterVec
	commandDuration  *prometheus.HistogramVec
	commandFailures  *prometheus.CounterVec
	bytesWritten     prometheus.Counter
	connectionsTotal prometheus.Counter
	connectionEnds   *prometheus.CounterVec
	activeConnection prometheus.Gauge
	droppedEvents    prometheus.Counter
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Commands decoded, by opcode",
		}, []string{"opcode"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Time from opcode read to response ready",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 60},
		}, []string{"opcode"}),

		commandFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_failures_total",
			Help:      "Commands answered with a failure status, by opcode",
		}, []string{"opcode"}),

		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bus_bytes_written_total",
			Help:      "Bytes forwarded to the driver byte bus",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Accepted connections",
		}),

		connectionEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connection_ends_total",
			Help:      "Finished connections, by reason",
		}, []string{"reason"}),

		activeConnection: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_connection",
			Help:      "1 while a client is connected",
		}),

		droppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pin_events_dropped_total",
			Help:      "Pin change events dropped because observers fell behind",
		}),
	}
}

func (m *Metrics) observeCommand(op Opcode, started time.Time, failed bool) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(op.String()).Inc()
	m.commandDuration.WithLabelValues(op.String()).Observe(time.Since(started).Seconds())
	if failed {
		m.commandFailures.WithLabelValues(op.String()).Inc()
	}
}

func (m *Metrics) addBytesWritten(n int) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) connectionOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeConnection.Set(1)
}

func (m *Metrics) connectionClosed(reason string) {
	if m == nil {
		return
	}
	m.activeConnection.Set(0)
	m.connectionEnds.WithLabelValues(reason).Inc()
}

func (m *Metrics) eventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}
