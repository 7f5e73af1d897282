package bundle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

// Process is a spawned server process.
type Process interface {
	Pid() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Err returns the exit error after Done is closed.
	Err() error
	// Kill terminates the process and everything in its process group.
	Kill() error
}

// Launcher spawns the server from an unpacked nexus directory.
type Launcher interface {
	Launch(nexusDir string, logger *slog.Logger) (Process, error)
}

// LauncherFunc adapts a plain function to Launcher.
type LauncherFunc func(nexusDir string, logger *slog.Logger) (Process, error)

func (f LauncherFunc) Launch(nexusDir string, logger *slog.Logger) (Process, error) {
	return f(nexusDir, logger)
}

// ExecLauncher runs bin/nexus console in its own process group.
type ExecLauncher struct{}

// Command returns the launch script and arguments for the host OS.
func (ExecLauncher) Command(nexusDir string) (string, []string) {
	script := "nexus"
	if runtime.GOOS == "windows" {
		script = "nexus.bat"
	}
	return filepath.Join(nexusDir, "bin", script), []string{"console"}
}

// Launch starts the server. Its stdout and stderr lines are logged until the
// process exits.
func (l ExecLauncher) Launch(nexusDir string, logger *slog.Logger) (Process, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name, args := l.Command(nexusDir)
	cmd := exec.Command(name, args...)
	cmd.Dir = nexusDir
	cmd.SysProcAttr = sysProcAttr()

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cmd.String(), err)
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	pid := cmd.Process.Pid
	logger.Info("Server process started", "pid", pid, "command", cmd.String())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		logLines(stdoutPipe, func(line string) {
			logger.Info("Server stdout", "pid", pid, "output", line)
		})
	}()
	go func() {
		defer wg.Done()
		logLines(stderrPipe, func(line string) {
			logger.Warn("Server stderr", "pid", pid, "output", line)
		})
	}()

	// Pipes must be drained before Wait closes them.
	go func() {
		wg.Wait()
		p.err = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

func logLines(r io.Reader, log func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log(scanner.Text())
	}
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	<-p.done
	return p.err
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return killProcessGroup(p.cmd.Process)
}
