package bundle

import "time"

// EventType names a lifecycle event.
type EventType string

const (
	EventConfigured    EventType = "configured"
	EventStarted       EventType = "started"
	EventStartFailed   EventType = "start_failed"
	EventProcessExited EventType = "process_exited"
	EventStopped       EventType = "stopped"
	EventUnconfigured  EventType = "unconfigured"
)

// Event is a lifecycle record handed to a Recorder.
type Event struct {
	BundleID           string
	Type               EventType
	State              State
	Port               int
	CommandMonitorPort int
	KeepAlivePort      int
	PID                int
	Message            string
	Timestamp          time.Time
}

// Recorder persists lifecycle events.
type Recorder interface {
	Record(event Event) error
}

type noopRecorder struct{}

func (noopRecorder) Record(Event) error { return nil }
