package app_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/internal/app"
	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/health"
	"github.com/MrWong99/polyglot/internal/history"
	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/internal/session"
	audiomock "github.com/MrWong99/polyglot/pkg/audio/mock"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	sttmock "github.com/MrWong99/polyglot/pkg/provider/stt/mock"
	translatemock "github.com/MrWong99/polyglot/pkg/provider/translate/mock"
	ttsmock "github.com/MrWong99/polyglot/pkg/provider/tts/mock"
	"github.com/MrWong99/polyglot/pkg/types"
)

// testConfig returns defaults tuned for fast detector turnaround.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.LevelInterval = 5 * time.Millisecond
	cfg.VAD.SilenceDuration = 40 * time.Millisecond
	cfg.Recording.MinDuration = 0
	cfg.Server.ObserveAddr = ""
	return cfg
}

// testProviders returns mock providers translating "Hola" to "Hello".
func testProviders() *app.Providers {
	return &app.Providers{
		STT:       &sttmock.Provider{Result: stt.Transcript{Text: "Hola", Language: "es", Confidence: 0.9}},
		Translate: &translatemock.Provider{Result: "Hello"},
		TTS:       &ttsmock.Provider{},
	}
}

// fakePlayer counts playbacks.
type fakePlayer struct {
	mu     sync.Mutex
	played int
	volume float64
}

func (p *fakePlayer) Play(context.Context, *types.SynthesizedAudio) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played++
	return nil
}

func (p *fakePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

type fixture struct {
	app    *app.App
	dev    *audiomock.Device
	hub    *relay.Hub
	store  *history.Memory
	player *fakePlayer
}

func newFixture(t *testing.T, cfg *config.Config, opts ...app.Option) *fixture {
	t.Helper()
	f := &fixture{
		dev:    &audiomock.Device{},
		hub:    relay.NewMemoryHub(),
		store:  history.NewMemory(10),
		player: &fakePlayer{},
	}
	opts = append([]app.Option{
		app.WithInputDevice(f.dev),
		app.WithRelay(f.hub),
		app.WithHistory(f.store),
		app.WithPlayer(f.player),
	}, opts...)
	a, err := app.New(context.Background(), cfg, testProviders(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.app = a
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return f
}

// pcm returns one 512-sample frame of constant amplitude.
func pcm(amplitude int16) []byte {
	b := make([]byte, 512*2)
	for i := range 512 {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(amplitude))
	}
	return b
}

// speak feeds loud frames followed by silence until ctx is done.
func speak(ctx context.Context, dev *audiomock.Device) {
	loud, quiet := pcm(12000), pcm(0)
	for i := 0; ctx.Err() == nil; i++ {
		s := dev.LastStream()
		if s == nil {
			time.Sleep(time.Millisecond)
			continue
		}
		frame := quiet
		if i < 30 {
			frame = loud
		}
		if !s.Push(frame) {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func waitFor(t *testing.T, events <-chan session.Event, want session.EventType) session.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed waiting for %v", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	if f.app.Controller() == nil || f.app.Pipeline() == nil || f.app.Health() == nil {
		t.Fatal("New left a subsystem nil")
	}
	if f.app.History() != f.store {
		t.Error("History should be the injected store")
	}
	if f.app.Controller().Active() {
		t.Error("controller should start inactive")
	}
}

func TestNew_InvalidShortPolicy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Recording.ShortPolicy = "explode"
	_, err := app.New(context.Background(), cfg, testProviders(),
		app.WithInputDevice(&audiomock.Device{}),
		app.WithRelay(relay.NewMemoryHub()),
		app.WithPlayer(&fakePlayer{}),
	)
	if err == nil {
		t.Fatal("expected error for unknown short policy")
	}
}

func TestApp_SoloUtteranceEndToEnd(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Voices.Selected = "voice-a"
	f := newFixture(t, cfg)
	ctrl := f.app.Controller()
	events, cancel := ctrl.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if _, err := ctrl.Start(ctx, session.ModeSolo, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if open, err := ctrl.ToggleMicrophone(ctx); err != nil || !open {
		t.Fatalf("ToggleMicrophone = %v, %v", open, err)
	}
	go speak(ctx, f.dev)

	res := waitFor(t, events, session.EventResult).Result
	if res.OriginalText != "Hola" || res.TranslatedText != "Hello" {
		t.Errorf("result = %+v", res)
	}
	if !res.HasAudio() {
		t.Error("result should carry synthesized audio")
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.player.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.player.count() == 0 {
		t.Error("translation was not played")
	}
	entries, err := f.store.List(ctx, 0)
	if err != nil || len(entries) == 0 || entries[0].TranslatedText != "Hello" {
		t.Errorf("history = %+v, %v", entries, err)
	}
}

func TestApp_HostJoinsRelayAndShutdownLeaves(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	room, err := f.app.Controller().Start(context.Background(), session.ModeHost, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := f.hub.Members(room); got != 1 {
		t.Fatalf("members after start = %d, want 1", got)
	}

	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if f.app.Controller().Active() {
		t.Error("session still active after Shutdown")
	}
	if got := f.hub.Members(room); got != 0 {
		t.Errorf("members after shutdown = %d, want 0", got)
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestApp_ShutdownExpiredContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.app.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	oldCfg := testConfig()
	f := newFixture(t, oldCfg, app.WithLogLevel(&level))

	newCfg := testConfig()
	newCfg.LogLevel = config.LogDebug
	newCfg.Translation.TargetLanguage = "fr"
	newCfg.VAD.SilenceThreshold = 42
	vol := 0.5
	newCfg.Voices.OutputVolume = &vol

	f.app.ApplyConfig(oldCfg, newCfg, config.Diff(oldCfg, newCfg))

	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
	s := f.app.Controller().Settings()
	if s.TargetLanguage != "fr" || s.SilenceThreshold != 42 || s.OutputVolume != 0.5 {
		t.Errorf("settings = %+v", s)
	}
}

func TestSessionSettings(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	off := false
	cfg.Translation.SaveTranscripts = &off
	cfg.Translation.AutoDetect = true
	cfg.Translation.Glossary = []string{"Quetzalcóatl"}
	cfg.Voices.Selected = "v1"
	cfg.Voices.Fallback = []string{"v2"}

	s := app.SessionSettings(cfg)
	if s.SaveTranscripts || !s.AutoPlay || s.OutputVolume != 1 {
		t.Errorf("flags = %+v", s)
	}
	if !s.AutoDetect || s.SourceLanguage != "es" || s.TargetLanguage != "en" {
		t.Errorf("languages = %+v", s)
	}
	if s.Voice.Resolve() != "v1" || len(s.Voice.Fallbacks) != 1 || len(s.Glossary) != 1 {
		t.Errorf("voice/glossary = %+v", s)
	}
	if s.SilenceDuration != cfg.VAD.SilenceDuration {
		t.Errorf("silence = %v", s.SilenceDuration)
	}
}

func TestServeListener_Readyz(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	mux := http.NewServeMux()
	f.app.Health().Register(mux)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.ServeListener(ctx, ln, mux) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	var body health.Report
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Checks["relay"].Status != health.StatusOK {
		t.Errorf("readyz = %d %+v", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_WithoutObserveAddr(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.app.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}
