package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/internal/app"
	"github.com/MrWong99/polyglot/internal/observe"
)

func newRelayCmd(g *globalFlags) *cobra.Command {
	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay server commands",
	}
	relayCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the websocket relay server",
		Long: `Serves GET /rooms/{room} on server.listen_addr and /metrics, /healthz
and /readyz on server.observe_addr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRelayServe(cmd, g)
		},
	})
	return relayCmd
}

func runRelayServe(cmd *cobra.Command, g *globalFlags) error {
	cfg, _, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "polyglot-relay"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	srv := app.NewRelayServer(cfg.Server, observe.DefaultMetrics(), tel)
	slog.Info("relay server starting", "listen_addr", cfg.Server.ListenAddr, "observe_addr", cfg.Server.ObserveAddr)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("goodbye")
	return nil
}
