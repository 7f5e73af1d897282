// Package keepalive runs the harness-side keep-alive endpoint. A bundle's
// wrapper pings this endpoint and shuts its server down when it becomes
// unreachable, so the harness can end supervision without talking to the
// server's own command monitor.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tomyedwab/bundlelauncher/launcher/command"
)

// State is the lifecycle state of a Watchdog.
type State int

const (
	StateCreated State = iota
	StateListening
	StateStopped
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateListening:
		return "Listening"
	case StateStopped:
		return "Stopped"
	default:
		return "InvalidState"
	}
}

// Watchdog listens on a reserved port for ping and stop-monitor.
type Watchdog struct {
	port   int
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	monitor *command.Monitor
	done    chan struct{}
}

// New creates a watchdog for port. Nothing is bound until Start.
func New(port int, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		port:   port,
		logger: logger.With("component", "KeepAlive", "port", port),
		done:   make(chan struct{}),
	}
}

// Start binds the port and serves commands on a new goroutine. A bind failure
// is returned to the caller and leaves the watchdog in StateCreated.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateCreated {
		return fmt.Errorf("keep-alive watchdog already %s", w.state)
	}

	monitor, err := command.Listen(w.port, w.logger,
		command.CommandFunc(command.Ping, func() bool {
			w.logger.Debug("Keep-alive ping received")
			return false
		}),
		command.StopMonitorCommand(),
	)
	if err != nil {
		return fmt.Errorf("start keep-alive watchdog: %w", err)
	}
	w.monitor = monitor
	w.state = StateListening

	go func() {
		defer close(w.done)
		if err := monitor.Serve(context.Background()); err != nil {
			w.logger.Warn("Keep-alive watchdog stopped with error", "error", err)
		}
		w.mu.Lock()
		w.state = StateStopped
		w.mu.Unlock()
		w.logger.Debug("Keep-alive watchdog stopped")
	}()

	w.logger.Debug("Keep-alive watchdog listening")
	return nil
}

// Stop forces the watchdog to unbind. It is safe to call in any state and
// more than once.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	monitor := w.monitor
	if w.state == StateCreated {
		w.state = StateStopped
		close(w.done)
	}
	w.mu.Unlock()

	if monitor != nil {
		monitor.Close()
	}
}

// Done is closed once the watchdog has stopped serving.
func (w *Watchdog) Done() <-chan struct{} {
	return w.done
}

// State returns the current lifecycle state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Port returns the port the watchdog was created for.
func (w *Watchdog) Port() int {
	return w.port
}
