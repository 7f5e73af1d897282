package bundle

import (
	"log/slog"

	"github.com/tomyedwab/bundlelauncher/launcher/command"
	"github.com/tomyedwab/bundlelauncher/launcher/health"
	"github.com/tomyedwab/bundlelauncher/launcher/ports"
	"github.com/tomyedwab/bundlelauncher/launcher/shutdown"
)

// Option configures a Bundle
type Option func(*Bundle)

// WithPorts sets the shared port reservation service. Required.
func WithPorts(svc *ports.Service) Option {
	return func(b *Bundle) {
		b.ports = svc
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bundle) {
		b.logger = logger
	}
}

// WithProbe sets the liveness probe
func WithProbe(probe health.Probe) Option {
	return func(b *Bundle) {
		b.probe = probe
	}
}

// WithLauncher sets how the server process is spawned
func WithLauncher(l Launcher) Option {
	return func(b *Bundle) {
		b.launcher = l
	}
}

// WithFileTasks sets the file operations used for plugins and launch scripts
func WithFileTasks(ft FileTasks) Option {
	return func(b *Bundle) {
		b.files = ft
	}
}

// WithHooks registers a stop hook in h while the bundle is started
func WithHooks(h *shutdown.Hooks) Option {
	return func(b *Bundle) {
		b.hooks = h
	}
}

// WithTalker sets the command channel client
func WithTalker(t *command.Talker) Option {
	return func(b *Bundle) {
		b.talker = t
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(mc MetricsCollector) Option {
	return func(b *Bundle) {
		b.metrics = mc
	}
}

// WithRecorder sets where lifecycle events are persisted
func WithRecorder(r Recorder) Option {
	return func(b *Bundle) {
		b.recorder = r
	}
}
