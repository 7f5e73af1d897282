package bundle

import "time"

// MetricsCollector defines the interface for collecting bundle lifecycle metrics
type MetricsCollector interface {
	// StateTransition records a state transition for a bundle
	StateTransition(id string, from, to State)

	// StartupDuration records how long Start took and whether it succeeded
	StartupDuration(id string, duration time.Duration, err error)

	// CommandDelivery records a command send and whether it reached the peer
	CommandDelivery(command string, delivered bool)

	// PortsReserved records the number of ports currently held
	PortsReserved(count int)
}

// noopMetricsCollector is a no-op implementation of MetricsCollector
type noopMetricsCollector struct{}

func (n *noopMetricsCollector) StateTransition(id string, from, to State)                    {}
func (n *noopMetricsCollector) StartupDuration(id string, duration time.Duration, err error) {}
func (n *noopMetricsCollector) CommandDelivery(command string, delivered bool)               {}
func (n *noopMetricsCollector) PortsReserved(count int)                                      {}

// NewNoopMetricsCollector creates a no-op metrics collector
func NewNoopMetricsCollector() MetricsCollector {
	return &noopMetricsCollector{}
}
