package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/internal/detector"
	"github.com/MrWong99/polyglot/internal/history"
	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/internal/session"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	sttmock "github.com/MrWong99/polyglot/pkg/provider/stt/mock"
	translatemock "github.com/MrWong99/polyglot/pkg/provider/translate/mock"
	ttsmock "github.com/MrWong99/polyglot/pkg/provider/tts/mock"
	"github.com/MrWong99/polyglot/pkg/types"
)

// fakeDetector lets tests drive utterances directly.
type fakeDetector struct {
	mu        sync.Mutex
	state     detector.State
	observers []detector.Observer
	startErr  error
	threshold float64
	silence   time.Duration
}

func (d *fakeDetector) StartListening(context.Context) error {
	d.mu.Lock()
	if d.startErr != nil {
		d.mu.Unlock()
		return d.startErr
	}
	d.state = detector.Listening
	obs := d.observers
	d.mu.Unlock()
	for _, o := range obs {
		if o.StateChange != nil {
			o.StateChange(detector.Listening)
		}
	}
	return nil
}

func (d *fakeDetector) StopListening() {
	d.mu.Lock()
	was := d.state
	d.state = detector.Idle
	obs := d.observers
	d.mu.Unlock()
	if was == detector.Idle {
		return
	}
	for _, o := range obs {
		if o.StateChange != nil {
			o.StateChange(detector.Idle)
		}
	}
}

func (d *fakeDetector) StopRecording() {}

func (d *fakeDetector) State() detector.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDetector) AddObserver(o detector.Observer) {
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
}

func (d *fakeDetector) Tune(threshold float64, silence time.Duration) {
	d.mu.Lock()
	d.threshold, d.silence = threshold, silence
	d.mu.Unlock()
}

func (d *fakeDetector) Flush() {}

// utter delivers clip to every VoiceEnd observer.
func (d *fakeDetector) utter(clip *audio.Clip) {
	d.mu.Lock()
	obs := d.observers
	d.mu.Unlock()
	for _, o := range obs {
		if o.VoiceEnd != nil {
			o.VoiceEnd(clip)
		}
	}
}

type fakePlayer struct {
	mu     sync.Mutex
	played []*types.SynthesizedAudio
	volume float64
}

func (p *fakePlayer) Play(_ context.Context, a *types.SynthesizedAudio) error {
	p.mu.Lock()
	p.played = append(p.played, a)
	p.mu.Unlock()
	return nil
}

func (p *fakePlayer) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func clip() *audio.Clip {
	now := time.Now()
	return audio.NewClip(make([]byte, 32000), audio.DefaultFormat, now.Add(-time.Second), now)
}

type harness struct {
	det     *fakeDetector
	stt     *sttmock.Provider
	tr      *translatemock.Provider
	tts     *ttsmock.Provider
	pl      *pipeline.Pipeline
	hub     *relay.Hub
	history *history.Memory
	player  *fakePlayer
	ctrl    *session.Controller
	events  <-chan session.Event
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	h := &harness{
		det:     &fakeDetector{},
		stt:     &sttmock.Provider{Result: stt.Transcript{Text: "Hola"}},
		tr:      &translatemock.Provider{Result: "Hello"},
		tts:     &ttsmock.Provider{},
		hub:     relay.NewMemoryHub(),
		history: history.NewMemory(10),
		player:  &fakePlayer{},
	}
	h.pl = pipeline.New(h.stt, h.tr, pipeline.WithSynthesizer(h.tts))
	settings := session.DefaultSettings()
	settings.Voice.Selected = "voice-1"
	all := append([]session.Option{
		session.WithRelay(h.hub),
		session.WithHistory(h.history),
		session.WithPlayer(h.player),
		session.WithSettings(settings),
	}, opts...)
	h.ctrl = session.New(h.det, h.pl, all...)
	events, cancel := h.ctrl.Subscribe()
	h.events = events
	t.Cleanup(func() {
		_ = h.ctrl.End(context.Background())
		cancel()
	})
	return h
}

// waitFor returns the next event of type want, skipping others.
func (h *harness) waitFor(t *testing.T, want session.EventType) session.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				t.Fatalf("event channel closed waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting until %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func recvMessage(t *testing.T, ch relay.Channel) relay.Message {
	t.Helper()
	select {
	case m, ok := <-ch.Messages():
		if !ok {
			t.Fatal("relay channel closed")
		}
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for relay message")
	}
	return relay.Message{}
}

func TestController_SoloUtterance(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	room, err := h.ctrl.Start(ctx, session.ModeSolo, "IGNORED")
	if err != nil || room != "" {
		t.Fatalf("Start = %q, %v", room, err)
	}

	open, err := h.ctrl.ToggleMicrophone(ctx)
	if err != nil || !open {
		t.Fatalf("ToggleMicrophone = %v, %v", open, err)
	}
	if ev := h.waitFor(t, session.EventState); ev.State != detector.Listening {
		t.Errorf("state event = %v", ev.State)
	}

	h.det.utter(clip())
	first := h.waitFor(t, session.EventProgress)
	if first.Progress.Progress != 25 || first.Progress.Label != "Transcribing speech..." {
		t.Errorf("first progress = %+v", first.Progress)
	}
	res := h.waitFor(t, session.EventResult).Result
	if res.OriginalText != "Hola" || res.TranslatedText != "Hello" || res.FromLanguage != "es" || res.ToLanguage != "en" {
		t.Errorf("result = %+v", res)
	}

	waitUntil(t, "playback", func() bool { return h.player.count() == 1 })
	entries, _ := h.history.List(ctx, 0)
	if len(entries) != 1 || entries[0].TranslatedText != "Hello" || entries[0].SessionID == "" || entries[0].Room != "" {
		t.Errorf("history = %+v", entries)
	}

	open, err = h.ctrl.ToggleMicrophone(ctx)
	if err != nil || open {
		t.Errorf("second toggle = %v, %v", open, err)
	}
	if h.det.State() != detector.Idle {
		t.Error("detector should be idle after second toggle")
	}
}

func TestController_HostPublishesAndEnds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	room, err := h.ctrl.Start(ctx, session.ModeHost, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := relay.NormalizeRoomCode(room); err != nil {
		t.Fatalf("generated room %q is invalid", room)
	}

	peer, err := h.hub.Join(ctx, room)
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	h.det.utter(clip())
	m := recvMessage(t, peer)
	if m.Type != relay.TypeText || m.Sender != relay.SenderHost {
		t.Errorf("message type/sender = %s/%s", m.Type, m.Sender)
	}
	if m.Payload == nil || m.Payload.Transcript != "Hola" || m.Payload.Translation != "Hello" {
		t.Errorf("payload = %+v", m.Payload)
	}
	entries, _ := h.history.List(ctx, 0)
	if len(entries) != 1 || entries[0].Room != room {
		t.Errorf("history = %+v", entries)
	}

	if err := h.ctrl.End(ctx); err != nil {
		t.Fatalf("End: %v", err)
	}
	if m := recvMessage(t, peer); m.Type != relay.TypeSessionEnded || m.Payload.RoomCode != room {
		t.Errorf("end message = %+v", m)
	}
	if ev := h.waitFor(t, session.EventSessionEnded); ev.Room != room {
		t.Errorf("session ended room = %q", ev.Room)
	}
	if h.ctrl.Active() || h.hub.Members(room) != 1 {
		t.Errorf("after End: active = %v, members = %d", h.ctrl.Active(), h.hub.Members(room))
	}
	if err := h.ctrl.End(ctx); err != nil {
		t.Errorf("second End: %v", err)
	}
}

func TestController_JoinReceivesRemote(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	room, err := h.ctrl.Start(ctx, session.ModeJoin, " ab12cd ")
	if err != nil || room != "AB12CD" {
		t.Fatalf("Start = %q, %v", room, err)
	}

	host, _ := h.hub.Join(ctx, room)
	defer host.Close()

	sent := relay.NewTextMessage(&types.TranslationResult{
		OriginalText: "Bonjour", TranslatedText: "Hello", FromLanguage: "fr", ToLanguage: "en",
	}, relay.SenderHost, time.Now())
	if err := host.Publish(ctx, sent); err != nil {
		t.Fatal(err)
	}
	if ev := h.waitFor(t, session.EventRemote); ev.Remote.ID != sent.ID {
		t.Errorf("remote = %+v", ev.Remote)
	}

	// Joiner utterances are published with the join sender.
	h.det.utter(clip())
	if m := recvMessage(t, host); m.Sender != relay.SenderJoin {
		t.Errorf("joiner message sender = %s", m.Sender)
	}

	if err := host.Publish(ctx, relay.NewSessionEnded(room, time.Now())); err != nil {
		t.Fatal(err)
	}
	h.waitFor(t, session.EventSessionEnded)
	waitUntil(t, "session inactive", func() bool { return !h.ctrl.Active() })
}

func TestController_StartValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness(t)

	if _, err := h.ctrl.Start(ctx, "party", ""); !errors.Is(err, session.ErrInvalidMode) {
		t.Errorf("unknown mode err = %v", err)
	}
	if _, err := h.ctrl.Start(ctx, session.ModeJoin, ""); !errors.Is(err, session.ErrInvalidRoom) {
		t.Errorf("join without room err = %v", err)
	}
	if _, err := h.ctrl.Start(ctx, session.ModeHost, "bad!"); !errors.Is(err, session.ErrInvalidRoom) {
		t.Errorf("host with bad room err = %v", err)
	}
	if _, err := h.ctrl.ToggleMicrophone(ctx); !errors.Is(err, session.ErrNotActive) {
		t.Errorf("toggle before start err = %v", err)
	}

	if _, err := h.ctrl.Start(ctx, session.ModeSolo, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.Start(ctx, session.ModeSolo, ""); !errors.Is(err, session.ErrActive) {
		t.Errorf("second Start err = %v", err)
	}

	noRelay := session.New(&fakeDetector{}, pipeline.New(&sttmock.Provider{}, &translatemock.Provider{}))
	if _, err := noRelay.Start(ctx, session.ModeHost, ""); !errors.Is(err, session.ErrNoRelay) {
		t.Errorf("host without relay err = %v", err)
	}
}

func TestController_ToggleRefusedWhileProcessing(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.stt.Delay = 200 * time.Millisecond
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx, session.ModeSolo, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.ctrl.ToggleMicrophone(ctx); err != nil {
		t.Fatal(err)
	}

	h.det.utter(clip())
	waitUntil(t, "pipeline busy", h.pl.Processing)

	open, err := h.ctrl.ToggleMicrophone(ctx)
	if !errors.Is(err, session.ErrProcessing) || !open {
		t.Errorf("toggle while processing = %v, %v", open, err)
	}
	if session.UserMessage(err) != session.MessageProcessing {
		t.Errorf("message = %q", session.UserMessage(err))
	}

	// A second utterance while busy is dropped.
	h.det.utter(clip())
	h.waitFor(t, session.EventResult)
	waitUntil(t, "pipeline idle", func() bool { return !h.pl.Processing() })
	if n := h.stt.CallCount(); n != 1 {
		t.Errorf("transcribe calls = %d, want 1", n)
	}
}

func TestController_FailureBecomesErrorEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.stt.Result = stt.Transcript{Text: "  "}
	if _, err := h.ctrl.Start(context.Background(), session.ModeSolo, ""); err != nil {
		t.Fatal(err)
	}

	h.det.utter(clip())
	ev := h.waitFor(t, session.EventError)
	if !errors.Is(ev.Err, pipeline.ErrNoSpeech) || ev.Message != "No speech detected in audio" {
		t.Errorf("error event = %v, %q", ev.Err, ev.Message)
	}
	if h.history.Len() != 0 {
		t.Error("failed run should not be saved")
	}
}

func TestController_UpdateSettings(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx, session.ModeSolo, ""); err != nil {
		t.Fatal(err)
	}

	s := h.ctrl.Settings()
	s.TargetLanguage = "DE"
	s.SaveTranscripts = false
	s.AutoPlay = false
	s.OutputVolume = 0.3
	s.SilenceThreshold = 25
	s.SilenceDuration = 2 * time.Second
	h.ctrl.UpdateSettings(s)

	h.det.mu.Lock()
	threshold, silence := h.det.threshold, h.det.silence
	h.det.mu.Unlock()
	if threshold != 25 || silence != 2*time.Second {
		t.Errorf("detector tuned to %v/%v", threshold, silence)
	}
	h.player.mu.Lock()
	volume := h.player.volume
	h.player.mu.Unlock()
	if volume != 0.3 {
		t.Errorf("volume = %v, want 0.3", volume)
	}

	h.det.utter(clip())
	if res := h.waitFor(t, session.EventResult).Result; res.ToLanguage != "de" {
		t.Errorf("ToLanguage = %q, want de", res.ToLanguage)
	}
	if call, _ := h.tr.LastCall(); call.Target != "de" {
		t.Errorf("translate target = %q", call.Target)
	}
	if h.history.Len() != 0 || h.player.count() != 0 {
		t.Errorf("history = %d, played = %d; both should be 0", h.history.Len(), h.player.count())
	}
}

func TestController_MicrophoneDenied(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.det.startErr = audio.ErrDeviceUnavailable
	ctx := context.Background()
	if _, err := h.ctrl.Start(ctx, session.ModeSolo, ""); err != nil {
		t.Fatal(err)
	}
	_, err := h.ctrl.ToggleMicrophone(ctx)
	if session.UserMessage(err) != session.MessageMicrophoneDenied {
		t.Errorf("message = %q", session.UserMessage(err))
	}
}

// countingRelay records joins so tests can sever channels.
type countingRelay struct {
	hub *relay.Hub

	mu       sync.Mutex
	channels []relay.Channel
}

func (r *countingRelay) Join(ctx context.Context, room string) (relay.Channel, error) {
	ch, err := r.hub.Join(ctx, room)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()
	return ch, nil
}

func (r *countingRelay) joins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func TestController_RejoinsAfterDrop(t *testing.T) {
	t.Parallel()

	cr := &countingRelay{hub: relay.NewMemoryHub()}
	h := newHarness(t,
		session.WithRelay(cr),
		session.WithReconnect(session.ReconnectorConfig{Backoff: time.Millisecond}),
	)
	ctx := context.Background()
	room, err := h.ctrl.Start(ctx, session.ModeHost, "")
	if err != nil {
		t.Fatal(err)
	}

	cr.mu.Lock()
	first := cr.channels[0]
	cr.mu.Unlock()
	_ = first.Close()

	waitUntil(t, "rejoin", func() bool { return cr.joins() == 2 && cr.hub.Members(room) == 1 })

	peer, _ := cr.hub.Join(ctx, room)
	defer peer.Close()
	h.det.utter(clip())
	if m := recvMessage(t, peer); m.Type != relay.TypeText {
		t.Errorf("message after rejoin = %+v", m)
	}
}
