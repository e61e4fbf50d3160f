package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "uvfleet"

// Metrics owns a private registry so tests and multiple daemons in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	sessionTransitions  *prometheus.CounterVec
	sessionOutcomes     *prometheus.CounterVec
	activeSessions      prometheus.Gauge
	commandDuration     *prometheus.HistogramVec
	schedulePromotions  *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	connectedDevices    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"state"}),
		sessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Terminal session outcomes.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently running or paused.",
		}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "command_duration_seconds",
			Help:      "Latency of device commands.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"command", "result"}),
		schedulePromotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "schedule",
			Name:      "promotions_total",
			Help:      "Schedule promotions by result.",
		}, []string{"result"}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outcome",
			Name:      "persistence_failures_total",
			Help:      "Failed log or schedule writes.",
		}, []string{"op"}),
		connectedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "connected",
			Help:      "Devices with a live link.",
		}),
	}
	m.registry.MustRegister(
		m.sessionTransitions,
		m.sessionOutcomes,
		m.activeSessions,
		m.commandDuration,
		m.schedulePromotions,
		m.persistenceFailures,
		m.connectedDevices,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionTransition(state string) {
	m.sessionTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) SessionOutcome(outcome string) {
	m.sessionOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) ObserveCommand(command string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commandDuration.WithLabelValues(command, result).Observe(elapsed.Seconds())
}

func (m *Metrics) PromotionResult(result string) {
	m.schedulePromotions.WithLabelValues(result).Inc()
}

func (m *Metrics) PersistenceFailure(op string) {
	m.persistenceFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) SetConnectedDevices(n int) {
	m.connectedDevices.Set(float64(n))
}
