// Package session ties the voice detector, the translation pipeline and the
// room relay into one user-facing session.
//
// A [Controller] runs in one of three modes. A host opens a room and
// publishes every translated utterance to it, a joiner receives the host's
// translations (and may publish its own), and a solo session keeps results
// local. UI code observes the session through [Controller.Subscribe].
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/polyglot/internal/detector"
	"github.com/MrWong99/polyglot/internal/history"
	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/internal/relay"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/types"
)

// subscriberBuffer is the per-subscriber event queue length.
const subscriberBuffer = 64

// Mode is the role of this participant in a room.
type Mode string

const (
	ModeHost Mode = "host"
	ModeJoin Mode = "join"
	ModeSolo Mode = "solo"
)

// ParseMode validates s as a session mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeHost, ModeJoin, ModeSolo:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m Mode) sender() relay.Sender {
	switch m {
	case ModeHost:
		return relay.SenderHost
	case ModeJoin:
		return relay.SenderJoin
	}
	return relay.SenderSolo
}

// Detector is the voice activity detector as used by the controller.
// *detector.Detector satisfies it.
type Detector interface {
	StartListening(ctx context.Context) error
	StopListening()
	StopRecording()
	State() detector.State
	AddObserver(o detector.Observer)
	Tune(threshold float64, silence time.Duration)
	Flush()
}

// Processor runs utterances through the translation pipeline.
// *pipeline.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, clip *audio.Clip, req pipeline.Request) (*types.TranslationResult, error)
	Processing() bool
}

// Player plays synthesized translations.
type Player interface {
	Play(ctx context.Context, a *types.SynthesizedAudio) error
}

// volumeSetter is implemented by players with adjustable output volume.
type volumeSetter interface {
	SetVolume(v float64)
}

var (
	_ Detector  = (*detector.Detector)(nil)
	_ Processor = (*pipeline.Pipeline)(nil)
)

// Option configures a Controller.
type Option func(*Controller)

// WithRelay sets the transport used by host and join sessions.
func WithRelay(r relay.Relay) Option {
	return func(c *Controller) { c.relay = r }
}

// WithHistory stores results when Settings.SaveTranscripts is set.
func WithHistory(s history.Store) Option {
	return func(c *Controller) { c.history = s }
}

// WithPlayer plays synthesized translations when Settings.AutoPlay is set.
func WithPlayer(p Player) Option {
	return func(c *Controller) { c.player = p }
}

// WithSettings sets the initial settings. Defaults to [DefaultSettings].
func WithSettings(s Settings) Option {
	return func(c *Controller) { c.settings = s }
}

// WithMetrics records the active session count.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithReconnect configures relay rejoin attempts after the transport drops.
// Relay and Room of cfg are ignored; they come from the session.
func WithReconnect(cfg ReconnectorConfig) Option {
	return func(c *Controller) { c.reconnect = cfg }
}

// WithClock replaces the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is a translation session. Safe for concurrent use.
type Controller struct {
	det       Detector
	pl        Processor
	relay     relay.Relay
	history   history.Store
	player    Player
	metrics   *observe.Metrics
	reconnect ReconnectorConfig
	now       func() time.Time

	mu        sync.Mutex
	settings  Settings
	active    bool
	mode      Mode
	room      string
	sessionID string
	ch        relay.Channel
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	smu     sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New returns a controller driving det and pl and registers itself as an
// observer of det.
func New(det Detector, pl Processor, opts ...Option) *Controller {
	c := &Controller{
		det:      det,
		pl:       pl,
		settings: DefaultSettings(),
		now:      time.Now,
		subs:     make(map[int]chan Event),
	}
	for _, o := range opts {
		o(c)
	}
	c.applySettings(c.settings)
	det.AddObserver(detector.Observer{
		VoiceEnd:    c.handleUtterance,
		Level:       func(l audio.Level) { c.emit(Event{Type: EventLevel, Level: l}) },
		StateChange: func(s detector.State) { c.emit(Event{Type: EventState, State: s}) },
		Error:       c.handleDetectorError,
	})
	return c
}

// Start begins a session. A host without a room gets a fresh room code, a
// joiner must name a valid room, and a solo session ignores room. It returns
// the room code, empty for solo.
func (c *Controller) Start(ctx context.Context, mode Mode, room string) (string, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return "", ErrActive
	}

	switch mode {
	case ModeHost:
		if strings.TrimSpace(room) == "" {
			room = relay.NewRoomCode()
		}
		fallthrough
	case ModeJoin:
		code, err := relay.NormalizeRoomCode(room)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidRoom, room)
		}
		room = code
	case ModeSolo:
		room = ""
	}

	var ch relay.Channel
	if mode != ModeSolo {
		if c.relay == nil {
			return "", ErrNoRelay
		}
		var err error
		if ch, err = c.reconnector(room).Connect(ctx); err != nil {
			return "", err
		}
	}

	c.ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.active = true
	c.mode = mode
	c.room = room
	c.sessionID = uuid.NewString()
	c.ch = ch
	if ch != nil {
		sctx := c.ctx
		c.wg.Go(func() { c.receive(sctx, ch) })
	}
	if c.metrics != nil {
		c.metrics.SessionStarted(ctx, string(mode))
	}

	slog.Info("session: started", "mode", mode, "room", room, "session_id", c.sessionID)
	return room, nil
}

// ToggleMicrophone starts listening when the microphone is closed and stops
// it otherwise. It reports whether the microphone is now open. While a
// pipeline run is in flight the toggle is refused with [ErrProcessing].
func (c *Controller) ToggleMicrophone(ctx context.Context) (bool, error) {
	if !c.Active() {
		return false, ErrNotActive
	}
	if c.pl.Processing() {
		return c.det.State() != detector.Idle, ErrProcessing
	}
	if c.det.State() == detector.Idle {
		if err := c.det.StartListening(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	c.det.StopListening()
	return false, nil
}

// StopRecording ends the current utterance without waiting for silence.
func (c *Controller) StopRecording() { c.det.StopRecording() }

// End closes the session: a host announces the end to the room, the
// microphone is released, in-flight runs are cancelled and the relay
// channel is closed. Idempotent.
func (c *Controller) End(ctx context.Context) error {
	return c.end(ctx, true)
}

func (c *Controller) end(ctx context.Context, announce bool) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = false
	mode, room, ch, cancel := c.mode, c.room, c.ch, c.cancel
	c.ch = nil
	c.mu.Unlock()

	c.det.StopListening()
	c.det.Flush()

	var errs []error
	if ch != nil && announce && mode == ModeHost {
		if err := ch.Publish(ctx, relay.NewSessionEnded(room, c.now())); err != nil {
			errs = append(errs, fmt.Errorf("session: announce end: %w", err))
		}
	}
	// Cancel first so the receive loop does not mistake the close for a drop.
	cancel()
	if ch != nil {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session: close relay: %w", err))
		}
	}
	c.wg.Wait()

	if c.metrics != nil {
		c.metrics.SessionEnded(context.WithoutCancel(ctx), string(mode))
	}
	slog.Info("session: ended", "mode", mode, "room", room)
	c.emit(Event{Type: EventSessionEnded, Room: room})
	return errors.Join(errs...)
}

// Subscribe returns a channel of session events and a function that cancels
// the subscription. Events are never blocked on; a subscriber that falls
// behind misses events, level samples first.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	c.smu.Lock()
	defer c.smu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, subscriberBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.smu.Lock()
			delete(c.subs, id)
			c.smu.Unlock()
			close(ch)
		})
	}
}

// UpdateSettings replaces the settings. Language, voice and glossary changes
// apply from the next utterance; detector tuning and volume apply at once.
func (c *Controller) UpdateSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	c.applySettings(s)
}

func (c *Controller) applySettings(s Settings) {
	c.det.Tune(s.SilenceThreshold, s.SilenceDuration)
	if v, ok := c.player.(volumeSetter); ok {
		v.SetVolume(s.OutputVolume)
	}
}

// Settings returns the current settings.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Mode returns the mode of the running session.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Room returns the room code of the running session.
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// handleUtterance runs on the detector's dispatch goroutine.
func (c *Controller) handleUtterance(clip *audio.Clip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	if c.pl.Processing() {
		slog.Info("session: dropping utterance, processing in progress", "duration", clip.Duration)
		return
	}
	run := utterance{
		ctx:       c.ctx,
		clip:      clip,
		settings:  c.settings,
		mode:      c.mode,
		room:      c.room,
		sessionID: c.sessionID,
		ch:        c.ch,
	}
	c.wg.Go(func() { c.process(run) })
}

// utterance is the session state captured when a clip arrives.
type utterance struct {
	ctx       context.Context
	clip      *audio.Clip
	settings  Settings
	mode      Mode
	room      string
	sessionID string
	ch        relay.Channel
}

func (c *Controller) process(u utterance) {
	req := u.settings.request()
	req.OnProgress = func(s pipeline.Status) { c.emit(Event{Type: EventProgress, Progress: s}) }

	res, err := c.pl.Process(u.ctx, u.clip, req)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		slog.Info("session: dropping utterance, processing in progress")
		return
	case err != nil && u.ctx.Err() != nil:
		slog.Debug("session: run cancelled", "error", err)
		return
	case err != nil:
		slog.Warn("session: translation failed", "error", err)
		c.emitError(err)
		return
	}

	if u.settings.SaveTranscripts && c.history != nil {
		entry := history.Entry{TranslationResult: *res, SessionID: u.sessionID, Room: u.room}
		if err := c.history.Add(u.ctx, entry); err != nil {
			slog.Warn("session: save transcript", "error", err)
		}
	}

	if u.ch != nil {
		if err := u.ch.Publish(u.ctx, relay.NewTextMessage(res, u.mode.sender(), c.now())); err != nil {
			slog.Warn("session: publish translation", "channel", relay.ChannelName(u.room), "error", err)
			c.emit(Event{Type: EventError, Err: err, Message: MessageNetwork})
		}
	}

	c.emit(Event{Type: EventResult, Result: res})

	if u.settings.AutoPlay && res.HasAudio() && c.player != nil {
		if err := c.player.Play(u.ctx, res.Audio); err != nil && u.ctx.Err() == nil {
			slog.Warn("session: playback failed", "error", err)
		}
	}
}

// receive forwards relay messages until the channel closes. A channel that
// closes while the session is still active is rejoined.
func (c *Controller) receive(ctx context.Context, ch relay.Channel) {
	for {
		for m := range ch.Messages() {
			if c.handleRemote(m) {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		room := c.room
		c.mu.Unlock()
		slog.Warn("session: relay connection lost", "channel", relay.ChannelName(room))

		next, err := c.reconnector(room).Reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.emitError(err)
			}
			return
		}

		c.mu.Lock()
		if !c.active || ctx.Err() != nil {
			c.mu.Unlock()
			_ = next.Close()
			return
		}
		c.ch = next
		c.mu.Unlock()
		ch = next
	}
}

// handleRemote turns m into an event and reports whether the session ended.
func (c *Controller) handleRemote(m relay.Message) bool {
	switch m.Type {
	case relay.TypeText:
		c.emit(Event{Type: EventRemote, Remote: &m})
	case relay.TypeSessionEnded:
		if m.Sender != relay.SenderHost || c.Mode() != ModeJoin {
			return false
		}
		slog.Info("session: host ended the session")
		// end waits for this goroutine.
		go func() { _ = c.end(context.Background(), false) }()
		return true
	default:
		slog.Debug("session: ignoring relay message", "type", m.Type)
	}
	return false
}

func (c *Controller) handleDetectorError(err error) {
	slog.Warn("session: detector error", "error", err)
	c.emitError(err)
}

func (c *Controller) emitError(err error) {
	c.emit(Event{Type: EventError, Err: err, Message: UserMessage(err)})
}

func (c *Controller) emit(ev Event) {
	c.smu.Lock()
	defer c.smu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			if ev.Type != EventLevel {
				slog.Debug("session: subscriber behind, dropping event", "type", ev.Type)
			}
		}
	}
}

func (c *Controller) reconnector(room string) *Reconnector {
	cfg := c.reconnect
	cfg.Relay = c.relay
	cfg.Room = room
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, _ error) {
			c.emit(Event{Type: EventReconnecting, Room: room, Attempt: attempt})
		}
	}
	return NewReconnector(cfg)
}
