// Package app wires the polyglot subsystems into a running translator.
//
// New builds the microphone capture, voice detector, translation pipeline,
// transcript history and session controller from a config and a set of
// providers. Run serves the observability endpoints until the context ends,
// ApplyConfig hot-reloads settings, and Shutdown tears everything down.
//
// For testing, inject doubles via functional options (WithInputDevice,
// WithPlayer, WithRelay, WithHistory). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/detector"
	"github.com/MrWong99/polyglot/internal/health"
	"github.com/MrWong99/polyglot/internal/history"
	"github.com/MrWong99/polyglot/internal/history/postgres"
	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/internal/recorder"
	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/internal/session"
	"github.com/MrWong99/polyglot/internal/transcript"
	"github.com/MrWong99/polyglot/internal/transcript/phonetic"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/audio/portaudio"
)

// shutdownGrace bounds the observe server's graceful shutdown.
const shutdownGrace = 5 * time.Second

// App owns all subsystem lifetimes of a listening client.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics   *observe.Metrics
	telemetry *observe.Telemetry
	logLevel  *slog.LevelVar

	device   audio.InputDevice
	capture  *audio.Capture
	rec      *recorder.Recorder
	det      *detector.Detector
	pipeline *pipeline.Pipeline
	history  history.Store
	relay    relay.Relay
	player   session.Player
	ctrl     *session.Controller
	health   *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithInputDevice replaces the PortAudio microphone.
func WithInputDevice(d audio.InputDevice) Option {
	return func(a *App) { a.device = d }
}

// WithPlayer replaces the PortAudio speaker.
func WithPlayer(p session.Player) Option {
	return func(a *App) { a.player = p }
}

// WithRelay replaces the websocket relay client.
func WithRelay(r relay.Relay) Option {
	return func(a *App) { a.relay = r }
}

// WithHistory replaces the configured transcript store.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithMetrics records pipeline, session and relay metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry exposes the Prometheus scrape endpoint of t from [App.Run].
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithLogLevel lets [App.ApplyConfig] change the log level of the handler
// built on v.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// New creates an App by wiring all subsystems together. providers normally
// comes from [BuildProviders].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.providers == nil {
		a.providers = &Providers{}
	}

	// ── 1. History ───────────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Translation pipeline ──────────────────────────────────────────
	a.initPipeline()

	// ── 3. Microphone, recorder and detector ─────────────────────────────
	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}

	// ── 4. Relay client ──────────────────────────────────────────────────
	if err := a.initRelay(); err != nil {
		return nil, fmt.Errorf("app: init relay: %w", err)
	}

	// ── 5. Session controller ────────────────────────────────────────────
	if a.player == nil {
		a.player = portaudio.NewPlayer()
	}
	ctrlOpts := []session.Option{
		session.WithRelay(a.relay),
		session.WithHistory(a.history),
		session.WithPlayer(a.player),
		session.WithSettings(SessionSettings(cfg)),
	}
	if a.metrics != nil {
		ctrlOpts = append(ctrlOpts, session.WithMetrics(a.metrics))
	}
	a.ctrl = session.New(a.det, a.pipeline, ctrlOpts...)

	// ── 6. Readiness checks ──────────────────────────────────────────────
	checks := []health.Checker{health.RelayCheck("relay", a.relay)}
	if p, ok := a.history.(health.Pinger); ok {
		// Transcripts are a convenience; translation works without them.
		checks = append(checks, health.Optional(health.PingCheck("history", p)))
	}
	a.health = health.New(checks...)

	a.closers = append(a.closers, a.providers.Close)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	switch a.cfg.History.Backend {
	case config.HistoryPostgres:
		store, err := postgres.NewStore(ctx, a.cfg.History.PostgresDSN)
		if err != nil {
			return err
		}
		a.history = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		slog.Info("history store connected", "backend", "postgres")
	default:
		a.history = history.NewMemory(a.cfg.History.MaxEntries)
		slog.Debug("history store ready", "backend", "memory", "max_entries", a.cfg.History.MaxEntries)
	}
	return nil
}

func (a *App) initPipeline() {
	a.pipeline = NewPipeline(a.providers, a.metrics)
}

// NewPipeline builds the translation pipeline over ps with glossary
// correction, plus synthesis and the speech filter when ps has them. m may be
// nil.
func NewPipeline(ps *Providers, m *observe.Metrics) *pipeline.Pipeline {
	opts := []pipeline.Option{
		pipeline.WithCorrector(transcript.NewGlossaryCorrector(phonetic.New())),
	}
	if ps.TTS != nil {
		opts = append(opts, pipeline.WithSynthesizer(ps.TTS))
	}
	if ps.VAD != nil {
		opts = append(opts, pipeline.WithSpeechFilter(ps.VAD, ps.MinVoicedFrames))
	}
	if m != nil {
		opts = append(opts, pipeline.WithMetrics(m))
	}
	return pipeline.New(ps.STT, ps.Translate, opts...)
}

func (a *App) initAudio() error {
	policy, err := recorder.ParseShortPolicy(a.cfg.Recording.ShortPolicy)
	if err != nil {
		return err
	}
	if a.device == nil {
		a.device = portaudio.NewDevice(a.cfg.Audio.Device)
	}

	a.capture = audio.NewCapture(a.device,
		audio.WithFormat(audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels}),
		audio.WithFrameSize(a.cfg.Audio.FrameSize),
		audio.WithLevelInterval(a.cfg.Audio.LevelInterval),
	)
	a.rec = recorder.New(
		recorder.WithMinDuration(a.cfg.Recording.MinDuration),
		recorder.WithMaxDuration(a.cfg.Recording.MaxDuration),
		recorder.WithShortPolicy(policy),
	)
	a.det = detector.New(a.capture, a.rec,
		detector.WithSilenceThreshold(a.cfg.VAD.SilenceThreshold),
		detector.WithSilenceDuration(a.cfg.VAD.SilenceDuration),
	)
	a.closers = append(a.closers, func() error {
		a.det.StopListening()
		return nil
	})
	return nil
}

func (a *App) initRelay() error {
	if a.relay != nil {
		return nil
	}
	var opts []relay.WebSocketOption
	if a.cfg.Relay.Token != "" {
		opts = append(opts, relay.WithHeader("Authorization", "Bearer "+a.cfg.Relay.Token))
	}
	ws, err := relay.NewWebSocket(a.cfg.Relay.URL, opts...)
	if err != nil {
		return err
	}
	a.relay = ws
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.ctrl }

// Pipeline returns the translation pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// History returns the transcript store.
func (a *App) History() history.Store { return a.history }

// Health returns the readiness handler.
func (a *App) Health() *health.Handler { return a.health }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves /metrics, /healthz and /readyz on the configured observe address
// until ctx is cancelled. Without an observe address it just waits for ctx.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ObserveAddr
	if addr == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.Handler())
	}
	return Serve(ctx, addr, mux)
}

// Serve runs an HTTP server for h on addr until ctx is cancelled, then shuts
// it down gracefully. A listen failure is returned immediately.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", addr, err)
	}
	return ServeListener(ctx, ln, h)
}

// ServeListener is [Serve] on an existing listener.
func ServeListener(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed config. It has
// the signature of [config.ChangeFunc].
func (a *App) ApplyConfig(_, cfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TranslationChanged || d.VoicesChanged || d.VADChanged {
		a.ctrl.UpdateSettings(SessionSettings(cfg))
		slog.Info("session settings reloaded",
			"source", cfg.Translation.SourceLanguage,
			"target", cfg.Translation.TargetLanguage,
			"voice", cfg.Voices.Selected,
		)
	}
	a.cfg = cfg
}

// SessionSettings extracts the session preferences from cfg.
func SessionSettings(cfg *config.Config) session.Settings {
	return session.Settings{
		SourceLanguage:  cfg.Translation.SourceLanguage,
		TargetLanguage:  cfg.Translation.TargetLanguage,
		AutoDetect:      cfg.Translation.AutoDetect,
		SaveTranscripts: cfg.Translation.SaveTranscriptsEnabled(),
		AutoPlay:        cfg.Voices.AutoPlayEnabled(),
		OutputVolume:    cfg.Voices.Volume(),
		Voice: pipeline.VoiceSelection{
			Selected:  cfg.Voices.Selected,
			Fallbacks: cfg.Voices.Fallback,
			Saved:     cfg.Voices.Saved,
		},
		Glossary:         cfg.Translation.Glossary,
		SilenceThreshold: cfg.VAD.SilenceThreshold,
		SilenceDuration:  cfg.VAD.SilenceDuration,
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends an active session and tears down all subsystems. It respects
// the context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		if a.ctrl.Active() {
			if err := a.ctrl.End(ctx); err != nil {
				slog.Warn("end session", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
