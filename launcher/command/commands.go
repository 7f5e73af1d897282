// Package command implements the line-oriented command protocol spoken
// between the harness and a running bundle. Each connection carries exactly
// one ASCII command terminated by a newline; nothing is sent back.
package command

const (
	// StopApplication asks the bundle's command monitor to shut the server down.
	StopApplication = "stop-application"
	// StopMonitor asks a monitor to stop listening and exit.
	StopMonitor = "stop-monitor"
	// Ping is a liveness no-op.
	Ping = "ping"

	// LocalHost is the address every command endpoint binds to.
	LocalHost = "127.0.0.1"
)

// Command is a named action a Monitor dispatches to. Execute returns true when
// the monitor should stop serving after running it.
type Command interface {
	ID() string
	Execute() bool
}

type commandFunc struct {
	id string
	fn func() bool
}

func (c commandFunc) ID() string    { return c.id }
func (c commandFunc) Execute() bool { return c.fn() }

// CommandFunc adapts fn to a Command registered under id.
func CommandFunc(id string, fn func() bool) Command {
	return commandFunc{id: id, fn: fn}
}

// PingCommand acknowledges a ping and keeps the monitor running.
func PingCommand() Command {
	return CommandFunc(Ping, func() bool { return false })
}

// StopMonitorCommand terminates the monitor that receives it.
func StopMonitorCommand() Command {
	return CommandFunc(StopMonitor, func() bool { return true })
}
