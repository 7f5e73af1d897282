package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomyedwab/bundlelauncher/launcher/registry"
)

var (
	eventsBundle string
	eventsLimit  int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recorded bundle lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.RegistryPath == "" {
			return errors.New("no registryPath configured")
		}

		reg, err := registry.Open(cfg.RegistryPath)
		if err != nil {
			return fmt.Errorf("failed to open registry: %w", err)
		}
		defer reg.Close()

		var events []registry.BundleEvent
		if eventsBundle != "" {
			events, err = reg.EventsByBundle(eventsBundle, eventsLimit)
		} else {
			events, err = reg.RecentEvents(eventsLimit)
		}
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}

		printEvents(cmd.OutOrStdout(), events)
		return nil
	},
}

func printEvents(out io.Writer, events []registry.BundleEvent) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tBUNDLE\tEVENT\tSTATE\tPORT\tCMD PORT\tKEEP-ALIVE\tPID\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			e.Time().Format("2006-01-02 15:04:05.000"),
			e.BundleID, e.EventType, e.State,
			e.Port, e.CommandMonitorPort, e.KeepAlivePort, e.PID,
			e.Message)
	}
	w.Flush()
}

func init() {
	eventsCmd.Flags().StringVarP(&eventsBundle, "bundle", "b", "", "Only show events of this bundle ID")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Maximum number of events")
}
