package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/internal/app"
	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/detector"
	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/internal/session"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func newListenCmd(g *globalFlags) *cobra.Command {
	var (
		mode string
		room string
	)
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Start a translation session on the microphone",
		Long: `Opens the microphone and translates every utterance.

Examples:
  polyglot listen                       # translate for yourself
  polyglot listen --mode host           # open a room and print its code
  polyglot listen --mode join --room K3X9QZ`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := session.ParseMode(mode)
			if err != nil {
				return err
			}
			return runListen(cmd, g, m, room)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(session.ModeSolo), "session mode: host, join or solo")
	cmd.Flags().StringVar(&room, "room", "", "room code to join (host: optional fixed code)")
	return cmd
}

func runListen(cmd *cobra.Command, g *globalFlags, mode session.Mode, room string) error {
	cfg, level, err := g.loadConfig(cmd)
	if err != nil {
		return err
	}
	slog.Info("polyglot starting", "config", g.configPath, "mode", mode, "log_level", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "polyglot"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}

	printStartupSummary(cmd.OutOrStdout(), cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithTelemetry(tel),
		app.WithLogLevel(level),
	)
	if err != nil {
		_ = providers.Close()
		return err
	}

	// Hot reload only applies when the config came from a file. SIGHUP
	// forces an immediate reload.
	if fileExists(g.configPath) {
		w, err := config.NewWatcher(g.configPath, application.ApplyConfig)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go w.Run(ctx)
			go reloadOnHangup(ctx, w)
		}
	}

	ctrl := application.Controller()
	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()
	out := cmd.OutOrStdout()
	go printEvents(out, events)

	code, err := ctrl.Start(ctx, mode, room)
	if err != nil {
		_ = application.Shutdown(context.Background())
		return fmt.Errorf("start session: %s", session.UserMessage(err))
	}
	if code != "" {
		fmt.Fprintf(out, "Room code: %s\n", code)
	}
	if _, err := ctrl.ToggleMicrophone(ctx); err != nil {
		_ = application.Shutdown(context.Background())
		return errors.New(session.UserMessage(err))
	}
	fmt.Fprintln(out, "Listening. Press Ctrl+C to end the session.")

	runErr := application.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	return runErr
}

// printEvents renders session events as terminal lines until events closes.
func printEvents(w io.Writer, events <-chan session.Event) {
	for ev := range events {
		switch ev.Type {
		case session.EventState:
			switch ev.State {
			case detector.Speaking:
				fmt.Fprintln(w, "● recording")
			case detector.Listening:
				fmt.Fprintln(w, "○ listening")
			}
		case session.EventProgress:
			if ev.Progress.Processing {
				fmt.Fprintf(w, "  %3d%% %s\n", ev.Progress.Progress, ev.Progress.Label)
			}
		case session.EventResult:
			r := ev.Result
			fmt.Fprintf(w, "[%s] %s\n[%s] %s\n", r.FromLanguage, r.OriginalText, r.ToLanguage, r.TranslatedText)
		case session.EventRemote:
			printRemote(w, ev.Remote)
		case session.EventError:
			fmt.Fprintf(w, "! %s\n", ev.Message)
		case session.EventSessionEnded:
			fmt.Fprintf(w, "Session %s ended.\n", ev.Room)
		case session.EventReconnecting:
			fmt.Fprintf(w, "! reconnecting to %s (attempt %d)\n", ev.Room, ev.Attempt)
		}
	}
}

func printRemote(w io.Writer, m *relay.Message) {
	if m == nil || m.Type != relay.TypeText || m.Payload == nil {
		return
	}
	p := m.Payload
	fmt.Fprintf(w, "%s %s [%s] %s\n    [%s] %s\n",
		m.Time().Format(time.TimeOnly), m.Sender, p.FromLanguage, p.Transcript, p.ToLanguage, p.Translation)
}

func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if changed, err := w.Reload(); err != nil {
				slog.Warn("config reload rejected", "err", err)
			} else if !changed {
				slog.Info("config unchanged")
			}
		}
	}
}
