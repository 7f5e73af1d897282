package keepalive

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyedwab/bundlelauncher/launcher/command"
	"github.com/tomyedwab/bundlelauncher/launcher/ports"
)

func reservePort(t *testing.T) int {
	t.Helper()
	svc, err := ports.New(ports.Config{})
	require.NoError(t, err)
	port, err := svc.Reserve()
	require.NoError(t, err)
	return port
}

func waitDone(t *testing.T, w *Watchdog) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop")
	}
}

func TestWatchdog_PingThenStopMonitor(t *testing.T) {
	w := New(reservePort(t), nil)
	assert.Equal(t, StateCreated, w.State())

	require.NoError(t, w.Start())
	assert.Equal(t, StateListening, w.State())

	talker := command.NewTalker(time.Second, nil)
	require.NoError(t, talker.Deliver(command.LocalHost, w.Port(), command.Ping))
	require.NoError(t, talker.Deliver(command.LocalHost, w.Port(), command.Ping))

	select {
	case <-w.Done():
		t.Fatal("ping must not stop the watchdog")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, StateListening, w.State())

	require.NoError(t, talker.Deliver(command.LocalHost, w.Port(), command.StopMonitor))
	waitDone(t, w)
	assert.Equal(t, StateStopped, w.State())

	// The port is released when the watchdog exits.
	l, err := net.Listen("tcp", net.JoinHostPort(command.LocalHost, strconv.Itoa(w.Port())))
	require.NoError(t, err)
	l.Close()
}

func TestWatchdog_ForcedStop(t *testing.T) {
	w := New(reservePort(t), nil)
	require.NoError(t, w.Start())

	w.Stop()
	w.Stop()
	waitDone(t, w)
	assert.Equal(t, StateStopped, w.State())
}

func TestWatchdog_StopBeforeStart(t *testing.T) {
	w := New(reservePort(t), nil)
	w.Stop()
	waitDone(t, w)
	assert.Equal(t, StateStopped, w.State())
	assert.Error(t, w.Start())
}

func TestWatchdog_BindFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	w := New(l.Addr().(*net.TCPAddr).Port, nil)
	err = w.Start()
	require.Error(t, err)
	assert.Equal(t, StateCreated, w.State())
}

func TestWatchdog_DoubleStart(t *testing.T) {
	w := New(reservePort(t), nil)
	require.NoError(t, w.Start())
	defer w.Stop()

	assert.Error(t, w.Start())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Created", StateCreated.String())
	assert.Equal(t, "Listening", StateListening.String())
	assert.Equal(t, "Stopped", StateStopped.String())
	assert.Equal(t, "InvalidState", State(42).String())
}
