package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the acceptor's Prometheus instrumentation, grounded in
// marmos91-dittofs's pkg/metadata/lock.Metrics: plain gauges/counters built
// once and registered with whatever Registerer the operator supplies, or
// left unregistered (useful in tests) when none is given.
type Metrics struct {
	activeSessions prometheus.Gauge
	tasksInFlight  prometheus.Gauge
	framesWritten  prometheus.Counter
}

// NewMetrics creates the acceptor's metrics and registers them with reg, if
// reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scscpd",
			Subsystem: "acceptor",
			Name:      "active_sessions",
			Help:      "Number of currently connected SCSCP sessions.",
		}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scscpd",
			Subsystem: "acceptor",
			Name:      "tasks_in_flight",
			Help:      "Number of procedure calls currently being handled.",
		}),
		framesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scscpd",
			Subsystem: "acceptor",
			Name:      "frames_written_total",
			Help:      "Total number of <?scscp ...?> control frames written to peers.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.activeSessions, m.tasksInFlight, m.framesWritten)
	}
	return m
}

func (m *Metrics) sessionStarted() { m.activeSessions.Inc() }
func (m *Metrics) sessionEnded()   { m.activeSessions.Dec() }

// TaskStarted, TaskEnded and FrameWritten implement scscp.Instrumentation,
// so a Metrics value can be passed directly to scscp.WithInstrumentation.
func (m *Metrics) TaskStarted()  { m.tasksInFlight.Inc() }
func (m *Metrics) TaskEnded()    { m.tasksInFlight.Dec() }
func (m *Metrics) FrameWritten() { m.framesWritten.Inc() }
