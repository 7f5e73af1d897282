package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/bundlelauncher/launcher/command"
)

var (
	controlHost          string
	controlPort          int
	controlKeepAlivePort int
	controlTimeout       time.Duration
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Send stop-application to a running bundle, and stop-monitor to its watchdog",
	RunE: func(cmd *cobra.Command, args []string) error {
		talker := command.NewTalker(controlTimeout, slog.Default())
		sendStop(cmd.OutOrStdout(), talker, controlHost, controlPort, controlKeepAlivePort)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Deliver ping to a command port and report whether it was accepted",
	RunE: func(cmd *cobra.Command, args []string) error {
		talker := command.NewTalker(controlTimeout, slog.Default())
		return ping(cmd.OutOrStdout(), talker, controlHost, controlPort)
	},
}

// sendStop delivers the stop commands best-effort. Undelivered commands are
// reported, not treated as failures: the peer may already be gone.
func sendStop(w io.Writer, talker *command.Talker, host string, port, keepAlivePort int) {
	report := func(cmd string, port int) {
		if err := talker.Deliver(host, port, cmd); err != nil {
			fmt.Fprintf(w, "%s not delivered to port %d: %v\n", cmd, port, err)
			return
		}
		fmt.Fprintf(w, "%s delivered to port %d\n", cmd, port)
	}
	report(command.StopApplication, port)
	if keepAlivePort > 0 {
		report(command.StopMonitor, keepAlivePort)
	}
}

func ping(w io.Writer, talker *command.Talker, host string, port int) error {
	if err := talker.Deliver(host, port, command.Ping); err != nil {
		return err
	}
	fmt.Fprintf(w, "ping delivered to port %d\n", port)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{stopCmd, pingCmd} {
		c.Flags().StringVar(&controlHost, "host", command.LocalHost, "Host the command port listens on")
		c.Flags().IntVarP(&controlPort, "port", "p", 0, "Command port")
		c.Flags().DurationVar(&controlTimeout, "timeout", 5*time.Second, "Connect and write timeout")
		c.MarkFlagRequired("port")
	}
	stopCmd.Flags().IntVarP(&controlKeepAlivePort, "keep-alive-port", "k", 0, "Keep-alive watchdog port")
}
