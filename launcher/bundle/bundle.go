// Package bundle supervises one unpacked server bundle through its
// lifecycle: reserving ports, writing them into the bundle's configuration,
// spawning the server, waiting for it to come up and shutting it down again.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomyedwab/bundlelauncher/launcher/command"
	"github.com/tomyedwab/bundlelauncher/launcher/filetasks"
	"github.com/tomyedwab/bundlelauncher/launcher/health"
	"github.com/tomyedwab/bundlelauncher/launcher/keepalive"
	"github.com/tomyedwab/bundlelauncher/launcher/ports"
	"github.com/tomyedwab/bundlelauncher/launcher/shutdown"
	"github.com/tomyedwab/bundlelauncher/launcher/strategy"
	"github.com/tomyedwab/bundlelauncher/launcher/wrapper"
)

const (
	NexusDir         = "nexus"
	WorkDir          = "sonatype-work/nexus"
	LibDir           = "nexus/lib"
	WrapperConfig    = "nexus/bin/jsw/conf/wrapper.conf"
	PluginRepository = "sonatype-work/nexus/plugin-repository"

	// WrapperHeader marks the start of the overrides appended to wrapper.conf.
	WrapperHeader = "The following properties are added by the bundle launcher as an override of properties already configured"

	DefaultStartTimeout      = 2 * time.Minute
	DefaultStartPollInterval = time.Second
	DefaultStopGracePeriod   = 15 * time.Second
	DefaultContextPath       = "/nexus"
)

// errStartAbandoned is returned by a Start that Stop took over before it
// finished.
var errStartAbandoned = fmt.Errorf("startup abandoned by stop: %w", context.Canceled)

// SystemProperty is an extra JVM system property. A nil Value is a flag.
type SystemProperty = strategy.Property

// Configuration describes one bundle. It is read-only once Configure has run.
type Configuration struct {
	TargetDirectory  string
	Port             int // 0 reserves one
	DebugPort        int // 0 disables remote debugging
	SuspendOnStart   bool
	SystemProperties []SystemProperty
	Plugins          []string

	StartTimeout      time.Duration
	StartPollInterval time.Duration
	StopGracePeriod   time.Duration
	ContextPath       string
}

// Handle is the supervision record of a bundle. Port fields are zero when
// not reserved; PID is zero when no process is running.
type Handle struct {
	ID                 string
	Port               int
	CommandMonitorPort int
	KeepAlivePort      int
	PID                int
}

// FileTasks performs the file operations a bundle needs.
type FileTasks interface {
	CopyDirectory(src, dst string) error
	Expand(archive, dst string) error
	MakeExecutable(baseDir, name string) error
}

// Bundle is the lifecycle controller for one bundle.
type Bundle struct {
	id       string
	cfg      Configuration
	logger   *slog.Logger
	ports    *ports.Service
	probe    health.Probe
	launcher Launcher
	files    FileTasks
	hooks    *shutdown.Hooks
	talker   *command.Talker
	metrics  MetricsCollector
	recorder Recorder

	mu           sync.Mutex
	state        State
	handle       Handle
	ownsMainPort bool
	kind         strategy.Kind
	watchdog     *keepalive.Watchdog
	process      Process
	removeHook   func()
	cancelStart  context.CancelFunc
	startDone    chan struct{}
}

// New creates a bundle in the Unconfigured state. WithPorts is required.
func New(cfg Configuration, opts ...Option) (*Bundle, error) {
	if cfg.TargetDirectory == "" {
		return nil, errors.New("target directory is required")
	}
	if cfg.Port < 0 || cfg.DebugPort < 0 {
		return nil, fmt.Errorf("invalid port configuration: port=%d debugPort=%d", cfg.Port, cfg.DebugPort)
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StartPollInterval <= 0 {
		cfg.StartPollInterval = DefaultStartPollInterval
	}
	if cfg.StopGracePeriod <= 0 {
		cfg.StopGracePeriod = DefaultStopGracePeriod
	}
	if cfg.ContextPath == "" {
		cfg.ContextPath = DefaultContextPath
	}

	b := &Bundle{
		id:    "nexus-" + uuid.New().String(),
		cfg:   cfg,
		state: StateUnconfigured,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.ports == nil {
		return nil, errors.New("a port reservation service is required")
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "bundle", "bundleID", b.id)
	if b.probe == nil {
		b.probe = health.NewHTTPProbe(5 * time.Second)
	}
	if b.launcher == nil {
		b.launcher = ExecLauncher{}
	}
	if b.files == nil {
		b.files = filetasks.Local{}
	}
	if b.talker == nil {
		b.talker = command.NewTalker(0, b.logger)
	}
	if b.metrics == nil {
		b.metrics = NewNoopMetricsCollector()
	}
	if b.recorder == nil {
		b.recorder = noopRecorder{}
	}
	b.handle.ID = b.id
	b.handle.Port = cfg.Port

	return b, nil
}

// ID returns the bundle's generated identifier.
func (b *Bundle) ID() string {
	return b.id
}

// State returns the current lifecycle state.
func (b *Bundle) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Handle returns a snapshot of the supervision record.
func (b *Bundle) Handle() Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handle
}

// Kind returns the configuration dialect chosen by the last Configure.
func (b *Bundle) Kind() strategy.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind
}

// NexusDirectory returns the unpacked server directory.
func (b *Bundle) NexusDirectory() string {
	return filepath.Join(b.cfg.TargetDirectory, NexusDir)
}

// WorkDirectory returns the server's work directory.
func (b *Bundle) WorkDirectory() string {
	return filepath.Join(b.cfg.TargetDirectory, filepath.FromSlash(WorkDir))
}

// URL returns the server's base URL, or "" when no main port is assigned.
func (b *Bundle) URL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.urlLocked()
}

func (b *Bundle) urlLocked() string {
	if b.handle.Port == 0 {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d%s/", b.handle.Port, strings.TrimSuffix(b.cfg.ContextPath, "/"))
}

// setState must be called with b.mu held.
func (b *Bundle) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.metrics.StateTransition(b.id, from, to)
	b.logger.Info("Bundle state changed", "from", from.String(), "to", to.String())
}

// event builds a lifecycle event from the current handle. Must be called with
// b.mu held.
func (b *Bundle) event(t EventType, message string) Event {
	return Event{
		BundleID:           b.id,
		Type:               t,
		State:              b.state,
		Port:               b.handle.Port,
		CommandMonitorPort: b.handle.CommandMonitorPort,
		KeepAlivePort:      b.handle.KeepAlivePort,
		PID:                b.handle.PID,
		Message:            message,
		Timestamp:          time.Now(),
	}
}

func (b *Bundle) record(e Event) {
	if err := b.recorder.Record(e); err != nil {
		b.logger.Warn("Failed to record lifecycle event", "event", string(e.Type), "error", err)
	}
}

// Configure reserves ports, writes them into the bundle's wrapper and server
// configuration and installs plugins. A configured bundle is reconfigured
// from scratch with fresh ports.
func (b *Bundle) Configure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	switch b.state {
	case StateUnconfigured, StateStopped:
	case StateConfigured:
		b.unconfigureLocked()
	default:
		state := b.state
		b.mu.Unlock()
		return &StateError{Op: "configure", State: state}
	}

	if err := b.configureLocked(); err != nil {
		b.unconfigureLocked()
		b.setState(StateUnconfigured)
		b.mu.Unlock()
		return err
	}
	b.setState(StateConfigured)
	e := b.event(EventConfigured, b.kind.String())
	b.mu.Unlock()

	b.record(e)
	return nil
}

func (b *Bundle) configureLocked() error {
	if err := b.reservePortsLocked(); err != nil {
		return err
	}

	kind, err := strategy.Determine(filepath.Join(b.cfg.TargetDirectory, filepath.FromSlash(LibDir)))
	if err != nil {
		return &ConfigurationIOError{Op: "determine strategy", Path: LibDir, Err: err}
	}
	b.kind = kind
	b.logger.Info("Configuring bundle", "strategy", kind.String(),
		"port", b.handle.Port, "commandMonitorPort", b.handle.CommandMonitorPort, "keepAlivePort", b.handle.KeepAlivePort)

	st := strategy.New(kind, strategy.Settings{
		DebugPort:          b.cfg.DebugPort,
		SuspendOnStart:     b.cfg.SuspendOnStart,
		SystemProperties:   b.cfg.SystemProperties,
		CommandMonitorPort: b.handle.CommandMonitorPort,
		KeepAlivePort:      b.handle.KeepAlivePort,
	})

	wrapperPath := filepath.Join(b.cfg.TargetDirectory, filepath.FromSlash(WrapperConfig))
	wc, err := wrapper.Load(wrapperPath, WrapperHeader)
	if err != nil {
		return &ConfigurationIOError{Op: "load wrapper config", Path: wrapperPath, Err: err}
	}
	st.ConfigureWrapper(wc)
	if err := wc.Save(); err != nil {
		return &ConfigurationIOError{Op: "save wrapper config", Path: wrapperPath, Err: err}
	}

	if err := st.ConfigureServer(b.cfg.TargetDirectory, b.handle.Port); err != nil {
		return &ConfigurationIOError{Op: "write server properties", Path: b.NexusDirectory(), Err: err}
	}

	return b.installPlugins()
}

func (b *Bundle) reservePortsLocked() error {
	if b.cfg.Port == 0 {
		port, err := b.ports.Reserve()
		if err != nil {
			return fmt.Errorf("reserve application port: %w", err)
		}
		b.handle.Port = port
		b.ownsMainPort = true
	} else {
		b.handle.Port = b.cfg.Port
		b.ownsMainPort = false
	}

	port, err := b.ports.Reserve()
	if err != nil {
		return fmt.Errorf("reserve command monitor port: %w", err)
	}
	b.handle.CommandMonitorPort = port

	port, err = b.ports.Reserve()
	if err != nil {
		return fmt.Errorf("reserve keep-alive port: %w", err)
	}
	b.handle.KeepAlivePort = port

	b.metrics.PortsReserved(b.ports.Len())
	return nil
}

func (b *Bundle) installPlugins() error {
	if len(b.cfg.Plugins) == 0 {
		return nil
	}
	repo := filepath.Join(b.cfg.TargetDirectory, filepath.FromSlash(PluginRepository))
	if err := os.MkdirAll(repo, 0755); err != nil {
		return &ConfigurationIOError{Op: "create plugin repository", Path: repo, Err: err}
	}

	for _, plugin := range b.cfg.Plugins {
		info, err := os.Stat(plugin)
		if err != nil {
			return &ConfigurationIOError{Op: "install plugin", Path: plugin, Err: err}
		}
		if info.IsDir() {
			err = b.files.CopyDirectory(plugin, filepath.Join(repo, filepath.Base(plugin)))
		} else {
			err = b.files.Expand(plugin, repo)
		}
		if err != nil {
			return &ConfigurationIOError{Op: "install plugin", Path: plugin, Err: err}
		}
		b.logger.Info("Installed plugin", "plugin", plugin)
	}
	return nil
}

// Unconfigure releases the reserved ports. It is safe to call repeatedly but
// only while no server is running; use Stop for a started bundle.
func (b *Bundle) Unconfigure() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateUnconfigured, StateConfigured, StateStopped:
	default:
		return &StateError{Op: "unconfigure", State: b.state}
	}
	b.unconfigureLocked()
	if b.state == StateConfigured {
		b.setState(StateUnconfigured)
	}
	return nil
}

func (b *Bundle) unconfigureLocked() {
	if b.handle.Port == 0 && b.handle.CommandMonitorPort == 0 && b.handle.KeepAlivePort == 0 {
		return
	}
	// A fixed application port was never reserved, so only forget it.
	if b.ownsMainPort && b.handle.Port != 0 {
		b.ports.Cancel(b.handle.Port)
	}
	b.ownsMainPort = false
	b.handle.Port = 0
	if b.handle.CommandMonitorPort != 0 {
		b.ports.Cancel(b.handle.CommandMonitorPort)
		b.handle.CommandMonitorPort = 0
	}
	if b.handle.KeepAlivePort != 0 {
		b.ports.Cancel(b.handle.KeepAlivePort)
		b.handle.KeepAlivePort = 0
	}
	b.metrics.PortsReserved(b.ports.Len())
}

// Start launches the server and waits until it reports alive. On failure the
// bundle is left Failed with its ports still reserved; call Stop to clean up.
// A Stop issued while Start is waiting cancels the wait.
func (b *Bundle) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateConfigured {
		state := b.state
		b.mu.Unlock()
		return &StateError{Op: "start", State: state}
	}
	startCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancelStart = cancel
	b.startDone = done
	b.setState(StateStarting)
	b.mu.Unlock()

	began := time.Now()
	watchdogBound, err := b.launch(done)
	if err == nil {
		err = b.waitUntilAlive(startCtx)
	}
	b.metrics.StartupDuration(b.id, time.Since(began), err)

	b.mu.Lock()
	if b.startDone != done {
		// Stop tore the bundle down while this start was still running.
		b.mu.Unlock()
		cancel()
		close(done)
		if err == nil {
			err = errStartAbandoned
		}
		return err
	}
	var e Event
	switch {
	case err == nil:
		b.setState(StateRunning)
		e = b.event(EventStarted, b.urlLocked())
	case !watchdogBound:
		b.setState(StateConfigured)
		e = b.event(EventStartFailed, err.Error())
	default:
		b.setState(StateFailed)
		e = b.event(EventStartFailed, err.Error())
	}
	b.cancelStart = nil
	b.startDone = nil
	b.mu.Unlock()

	cancel()
	close(done)
	b.record(e)
	return err
}

// launch starts the watchdog, registers the shutdown hook and spawns the
// server. watchdogBound reports whether anything needs tearing down. done
// identifies the Start call; resources created after Stop has taken over are
// released here.
func (b *Bundle) launch(done chan struct{}) (watchdogBound bool, err error) {
	b.mu.Lock()
	keepAlivePort := b.handle.KeepAlivePort
	commandPort := b.handle.CommandMonitorPort
	b.mu.Unlock()

	wd := keepalive.New(keepAlivePort, b.logger)
	if err := wd.Start(); err != nil {
		return false, fmt.Errorf("start keep-alive watchdog: %w", err)
	}

	b.mu.Lock()
	if b.startDone != done {
		b.mu.Unlock()
		wd.Stop()
		return true, errStartAbandoned
	}
	b.watchdog = wd
	if b.hooks != nil {
		b.removeHook = b.hooks.Add("stop "+b.id, func() {
			b.send(commandPort, command.StopApplication)
		})
	}
	b.mu.Unlock()

	nexusDir := b.NexusDirectory()
	if runtime.GOOS != "windows" {
		for _, name := range []string{"nexus", "wrapper"} {
			if err := b.files.MakeExecutable(nexusDir, name); err != nil {
				return true, &ConfigurationIOError{Op: "make executable", Path: filepath.Join(nexusDir, name), Err: err}
			}
		}
	}

	proc, err := b.launcher.Launch(nexusDir, b.logger)
	if err != nil {
		return true, fmt.Errorf("launch server: %w", err)
	}

	b.mu.Lock()
	if b.startDone != done {
		b.mu.Unlock()
		b.kill(proc)
		return true, errStartAbandoned
	}
	b.process = proc
	b.handle.PID = proc.Pid()
	b.mu.Unlock()

	go b.watchExit(proc)
	return true, nil
}

// watchExit reports a server that exits on its own.
func (b *Bundle) watchExit(proc Process) {
	<-proc.Done()

	b.mu.Lock()
	if b.process != proc || (b.state != StateStarting && b.state != StateRunning) {
		b.mu.Unlock()
		return
	}
	b.handle.PID = 0
	msg := "exited"
	if err := proc.Err(); err != nil {
		msg = err.Error()
	}
	e := b.event(EventProcessExited, msg)
	b.mu.Unlock()

	b.logger.Warn("Server process exited unexpectedly", "pid", proc.Pid(), "exit", msg)
	b.record(e)
}

// waitUntilAlive polls the probe sequentially until it succeeds or the
// start timeout passes.
func (b *Bundle) waitUntilAlive(ctx context.Context) error {
	deadline := time.Now().Add(b.cfg.StartTimeout)
	url := b.URL()
	for {
		if b.IsAlive(ctx) {
			b.logger.Info("Server is alive", "url", url)
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &StartupTimeoutError{Timeout: b.cfg.StartTimeout, URL: url}
		}
		timer := time.NewTimer(min(b.cfg.StartPollInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("waiting for %s: %w", url, ctx.Err())
		case <-timer.C:
		}
	}
}

// IsAlive asks the probe whether the server answers. Probe errors count as
// not alive.
func (b *Bundle) IsAlive(ctx context.Context) bool {
	url := b.URL()
	if url == "" {
		return false
	}
	alive, err := b.probe.Alive(ctx, url)
	if err != nil {
		b.logger.Debug("Server not alive", "url", url, "error", err)
		return false
	}
	return alive
}

// send is the best-effort command primitive shared by Stop and the
// shutdown hook.
func (b *Bundle) send(port int, cmd string) {
	if port == 0 {
		return
	}
	err := b.talker.Deliver(command.LocalHost, port, cmd)
	b.metrics.CommandDelivery(cmd, err == nil)
	if err != nil {
		b.logger.Debug("Command not delivered", "command", cmd, "port", port, "error", err)
	}
}

// Stop shuts the server and watchdog down and releases the ports. Teardown
// failures are logged, never returned; the only error is ctx ending while
// waiting for startup to end or for the server to exit, in which case the
// process group is killed and teardown still completes.
func (b *Bundle) Stop(ctx context.Context) error {
	var startErr error
	b.mu.Lock()
	for b.state == StateStarting && startErr == nil {
		cancel, done := b.cancelStart, b.startDone
		b.mu.Unlock()
		b.logger.Info("Stop requested while starting, cancelling startup")
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			b.logger.Warn("Startup did not end before stop deadline, tearing down anyway")
			startErr = fmt.Errorf("waiting for startup to end: %w", ctx.Err())
		}
		b.mu.Lock()
	}
	if b.state == StateStarting {
		// Take ownership from the running Start; it releases whatever it
		// creates from here on.
		b.cancelStart = nil
		b.startDone = nil
	}

	switch b.state {
	case StateUnconfigured, StateStopped, StateStopping:
		b.mu.Unlock()
		return nil
	case StateConfigured:
		b.unconfigureLocked()
		b.setState(StateUnconfigured)
		e := b.event(EventUnconfigured, "")
		b.mu.Unlock()
		b.record(e)
		return nil
	}

	b.setState(StateStopping)
	commandPort := b.handle.CommandMonitorPort
	keepAlivePort := b.handle.KeepAlivePort
	wd := b.watchdog
	proc := b.process
	removeHook := b.removeHook
	b.watchdog = nil
	b.process = nil
	b.removeHook = nil
	b.mu.Unlock()

	b.send(commandPort, command.StopApplication)
	b.send(keepAlivePort, command.StopMonitor)
	if wd != nil {
		wd.Stop()
	}

	waitErr := b.awaitExit(ctx, proc)

	if removeHook != nil {
		removeHook()
	}

	b.mu.Lock()
	b.handle.PID = 0
	b.unconfigureLocked()
	b.setState(StateStopped)
	e := b.event(EventStopped, "")
	b.mu.Unlock()

	b.record(e)
	if startErr != nil {
		return startErr
	}
	return waitErr
}

// awaitExit waits up to the grace period for proc to exit, then kills its
// process group.
func (b *Bundle) awaitExit(ctx context.Context, proc Process) error {
	if proc == nil {
		return nil
	}
	timer := time.NewTimer(b.cfg.StopGracePeriod)
	defer timer.Stop()

	select {
	case <-proc.Done():
		b.logger.Info("Server process exited", "pid", proc.Pid())
		return nil
	case <-timer.C:
		b.logger.Warn("Server did not exit within grace period, killing process group",
			"pid", proc.Pid(), "gracePeriod", b.cfg.StopGracePeriod)
		b.kill(proc)
		return nil
	case <-ctx.Done():
		b.logger.Warn("Stop cancelled, killing process group", "pid", proc.Pid())
		b.kill(proc)
		return fmt.Errorf("waiting for server to exit: %w", ctx.Err())
	}
}

func (b *Bundle) kill(proc Process) {
	if err := proc.Kill(); err != nil {
		b.logger.Error("Failed to kill server process", "pid", proc.Pid(), "error", err)
		return
	}
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		b.logger.Error("Server process did not exit after kill", "pid", proc.Pid())
	}
}
