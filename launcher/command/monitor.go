package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Monitor listens on a loopback port and runs the command named by each
// incoming line.
type Monitor struct {
	listener    net.Listener
	commands    map[string]Command
	logger      *slog.Logger
	readTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen binds 127.0.0.1:port right away so that a bind failure surfaces to
// the caller. A zero port binds an ephemeral port; see Port.
func Listen(port int, logger *slog.Logger, commands ...Command) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l, err := net.Listen("tcp", net.JoinHostPort(LocalHost, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("bind command monitor on port %d: %w", port, err)
	}

	m := &Monitor{
		listener:    l,
		commands:    make(map[string]Command, len(commands)),
		logger:      logger,
		readTimeout: defaultTimeout,
		closed:      make(chan struct{}),
	}
	for _, c := range commands {
		m.commands[c.ID()] = c
	}
	return m, nil
}

// Port returns the port the monitor is bound to.
func (m *Monitor) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// Serve accepts connections until a command asks to stop, ctx is done or
// Close is called. Connections are handled one at a time in arrival order.
func (m *Monitor) Serve(ctx context.Context) error {
	m.logger.Debug("Command monitor listening", "port", m.Port())

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			m.Close()
		case <-stopWatch:
		}
	}()

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.closed:
				m.logger.Debug("Command monitor closed", "port", m.Port())
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept command connection: %w", err)
		}

		if m.handle(conn) {
			m.logger.Debug("Command monitor stopping", "port", m.Port())
			m.Close()
			return nil
		}
	}
}

// Close unbinds the listener. It is safe to call more than once.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.closed)
		err = m.listener.Close()
	})
	return err
}

// handle reads a single line from conn and runs the matching command. It
// reports whether the monitor should stop.
func (m *Monitor) handle(conn net.Conn) bool {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(m.readTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		m.logger.Debug("Failed to read command", "remote", conn.RemoteAddr().String(), "error", err)
		return false
	}
	name := strings.TrimSpace(line)

	c, ok := m.commands[name]
	if !ok {
		m.logger.Debug("Ignoring unknown command", "command", name, "port", m.Port())
		return false
	}
	m.logger.Debug("Executing command", "command", name, "port", m.Port())
	return c.Execute()
}
