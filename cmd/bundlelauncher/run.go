package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tomyedwab/bundlelauncher/launcher/bundle"
	"github.com/tomyedwab/bundlelauncher/launcher/command"
	"github.com/tomyedwab/bundlelauncher/launcher/health"
	"github.com/tomyedwab/bundlelauncher/launcher/ports"
	"github.com/tomyedwab/bundlelauncher/launcher/registry"
	"github.com/tomyedwab/bundlelauncher/launcher/shutdown"
)

var runTarget string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Configure and start the bundle, then stop it on SIGINT or SIGTERM",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if runTarget != "" {
			cfg.TargetDirectory = runTarget
		}
		logger := slog.Default()

		svc, err := ports.New(cfg.PortsConfig())
		if err != nil {
			return err
		}
		hooks := shutdown.New(logger)
		defer hooks.Run()

		opts := []bundle.Option{
			bundle.WithPorts(svc),
			bundle.WithLogger(logger),
			bundle.WithHooks(hooks),
			bundle.WithTalker(command.NewTalker(cfg.CommandTimeout, logger)),
			bundle.WithProbe(&health.HTTPProbe{
				Client:     &http.Client{Timeout: cfg.CommandTimeout},
				StatusPath: cfg.StatusPath,
			}),
		}

		if cfg.RegistryPath != "" {
			reg, err := registry.Open(cfg.RegistryPath)
			if err != nil {
				return fmt.Errorf("failed to open registry: %w", err)
			}
			defer reg.Close()
			opts = append(opts, bundle.WithRecorder(reg))
		}

		if cfg.MetricsAddr != "" {
			pmc := bundle.NewPrometheusMetricsCollector("")
			opts = append(opts, bundle.WithMetrics(pmc))

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(pmc.Registry(), promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
			go func() {
				logger.Info("Serving metrics", "address", cfg.MetricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdownServer(ctx, srv, logger)
			}()
		}

		b, err := bundle.New(cfg.BundleConfiguration(), opts...)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		signals := hooks.Notify(ctx)
		go func() {
			select {
			case sig := <-signals:
				logger.Info("Shutting down", "signal", sig.String())
				cancel()
			case <-ctx.Done():
			}
		}()

		stop := func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.StopGracePeriod+10*time.Second)
			defer stopCancel()
			if err := b.Stop(stopCtx); err != nil {
				logger.Error("Stop did not complete cleanly", "error", err)
			}
		}

		if err := b.Configure(ctx); err != nil {
			return fmt.Errorf("configure bundle: %w", err)
		}
		if err := b.Start(ctx); err != nil {
			stop()
			return fmt.Errorf("start bundle: %w", err)
		}

		h := b.Handle()
		fmt.Fprintf(cmd.OutOrStdout(), "Bundle %s running at %s (pid %d, command port %d, keep-alive port %d)\n",
			h.ID, b.URL(), h.PID, h.CommandMonitorPort, h.KeepAlivePort)

		<-ctx.Done()
		stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Bundle %s stopped\n", h.ID)
		return nil
	},
}

func shutdownServer(ctx context.Context, srv *http.Server, logger *slog.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown failed", "address", srv.Addr, "error", err)
	}
}
