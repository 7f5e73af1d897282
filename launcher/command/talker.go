package command

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"
)

const defaultTimeout = 5 * time.Second

// DeliveryError reports a command that could not be written to its peer.
// During shutdown this is the expected outcome when the peer is already gone.
type DeliveryError struct {
	Address string
	Command string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %q to %s: %v", e.Command, e.Address, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Talker sends single commands to a command endpoint.
type Talker struct {
	Timeout time.Duration // Optional, bounds both connect and write, defaults to 5s
	Logger  *slog.Logger  // Optional, defaults to slog.Default()
}

// NewTalker creates a Talker with the given timeout.
func NewTalker(timeout time.Duration, logger *slog.Logger) *Talker {
	return &Talker{Timeout: timeout, Logger: logger}
}

// Deliver opens a connection to host:port, writes command as one line and
// closes the connection. It does not wait for a reply.
func (t *Talker) Deliver(host string, port int, command string) error {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	timeout := t.timeout()

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return &DeliveryError{Address: address, Command: command, Err: err}
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return &DeliveryError{Address: address, Command: command, Err: err}
	}
	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return &DeliveryError{Address: address, Command: command, Err: err}
	}
	return nil
}

// Send delivers command and swallows any failure, logging it at debug level.
// It reports whether the command was written.
func (t *Talker) Send(host string, port int, command string) bool {
	logger := t.logger()
	logger.Debug("Sending command", "command", command, "host", host, "port", port)
	if err := t.Deliver(host, port, command); err != nil {
		logger.Debug("Skipping error while sending command", "command", command, "port", port, "error", err)
		return false
	}
	return true
}

func (t *Talker) timeout() time.Duration {
	if t == nil || t.Timeout <= 0 {
		return defaultTimeout
	}
	return t.Timeout
}

func (t *Talker) logger() *slog.Logger {
	if t == nil || t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}
