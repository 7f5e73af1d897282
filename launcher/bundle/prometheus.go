package bundle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	stateTransitions *prometheus.CounterVec
	startupDuration  *prometheus.HistogramVec
	commands         *prometheus.CounterVec
	portsReserved    prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "bundlelauncher"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bundle_state_transitions_total",
			Help:      "Total number of bundle state transitions",
		},
		[]string{"bundle_id", "from_state", "to_state"},
	)

	pmc.startupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_startup_duration_seconds",
			Help:      "Time from Start until the server reported alive or start failed",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"bundle_id", "status"},
	)

	pmc.commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Total number of commands sent over the command channel",
		},
		[]string{"command", "delivered"},
	)

	pmc.portsReserved = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ports_reserved",
			Help:      "Number of ports currently reserved",
		},
	)

	pmc.registry.MustRegister(
		pmc.stateTransitions,
		pmc.startupDuration,
		pmc.commands,
		pmc.portsReserved,
	)

	return pmc
}

// StateTransition records a state transition
func (pmc *PrometheusMetricsCollector) StateTransition(id string, from, to State) {
	pmc.stateTransitions.WithLabelValues(id, from.String(), to.String()).Inc()
}

// StartupDuration records the duration of a Start call
func (pmc *PrometheusMetricsCollector) StartupDuration(id string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	pmc.startupDuration.WithLabelValues(id, status).Observe(duration.Seconds())
}

// CommandDelivery records a command send
func (pmc *PrometheusMetricsCollector) CommandDelivery(command string, delivered bool) {
	label := "false"
	if delivered {
		label = "true"
	}
	pmc.commands.WithLabelValues(command, label).Inc()
}

// PortsReserved records the current reservation count
func (pmc *PrometheusMetricsCollector) PortsReserved(count int) {
	pmc.portsReserved.Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP handler registration
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}
