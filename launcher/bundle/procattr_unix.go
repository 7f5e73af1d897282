//go:build !windows

package bundle

import (
	"os"
	"syscall"
)

// sysProcAttr puts the server in its own process group so the wrapper and
// the JVM it forks can be signalled together.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err != nil {
		return p.Kill()
	}
	return nil
}
