package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/internal/app"
	"github.com/MrWong99/polyglot/internal/config"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "polyglot",
		Short: "Real-time voice translator",
		Long: `polyglot listens on your microphone, detects when you speak,
transcribes and translates each utterance and optionally reads the
translation aloud. Hosts and joiners share translations through a
websocket relay room.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "force debug logging")

	root.AddCommand(
		newListenCmd(g),
		newRelayCmd(g),
		newDevicesCmd(),
		newVoicesCmd(g),
		newTranslateCmd(g),
		newLanguagesCmd(),
	)
	return root
}

// loadConfig reads the config file and installs the default logger. A missing
// file at the default path falls back to built-in defaults.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, *slog.LevelVar, error) {
	cfg, err := config.Load(g.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config"):
		cfg = config.Default()
	case errors.Is(err, os.ErrNotExist):
		return nil, nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", g.configPath)
	case err != nil:
		return nil, nil, err
	}

	level := cfg.LogLevel
	if g.verbose {
		level = config.LogDebug
	}
	var lv slog.LevelVar
	lv.Set(level.Level())
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), &lv))
	return cfg, &lv, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildProviders instantiates the providers named in cfg.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	return app.BuildProviders(cfg, reg)
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        Polyglot, startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider(w, "Translate", cfg.Providers.Translate.Name, cfg.Providers.Translate.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "VAD", cfg.Providers.VAD.Name, "")
	printRow(w, "Languages", cfg.Translation.SourceLanguage+" → "+cfg.Translation.TargetLanguage)
	printRow(w, "History", string(cfg.History.Backend))
	printRow(w, "Relay", cfg.Relay.URL)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
