// Package detector implements the voice activity state machine that turns a
// loudness signal into utterance boundaries.
//
// A [Detector] is Idle until [Detector.StartListening] opens the microphone.
// While Listening, a loudness sample strictly above the threshold starts a
// recording and moves to Speaking. While Speaking, quiet samples arm a silence
// timer and loud samples cancel it; when the timer fires the recording is
// finalized and handed to the OnVoiceEnd callback.
//
// Callbacks run on a dispatch goroutine owned by the detector, one at a time
// and in the order the transitions happened. They never run under the
// detector's lock or on the microphone goroutines, so a callback may call
// any detector method, including StopListening.
package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/polyglot/internal/recorder"
	"github.com/MrWong99/polyglot/pkg/audio"
)

const (
	// DefaultSilenceThreshold is the loudness a sample must exceed to count
	// as speech.
	DefaultSilenceThreshold = 10.0

	// DefaultSilenceDuration is how long the level must stay at or below the
	// threshold before an utterance ends.
	DefaultSilenceDuration = time.Second
)

// State is the detector's lifecycle state.
type State int

const (
	// Idle: the microphone is closed.
	Idle State = iota
	// Listening: the microphone is open and waiting for speech.
	Listening
	// Speaking: an utterance is being recorded.
	Speaking
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Capture is the microphone as seen by the detector. *audio.Capture
// satisfies it.
type Capture interface {
	recorder.FrameSource
	Start(ctx context.Context) error
	Stop() error
	OnLevel(fn func(audio.Level))
	OnError(fn func(error))
}

// Recorder buffers one utterance at a time. *recorder.Recorder satisfies it.
type Recorder interface {
	Begin(src recorder.FrameSource) error
	End() (*audio.Clip, error)
	Abort()
}

var (
	_ Capture  = (*audio.Capture)(nil)
	_ Recorder = (*recorder.Recorder)(nil)
)

// Option configures a Detector.
type Option func(*Detector)

// WithSilenceThreshold sets the loudness threshold in [audio.Level] units.
func WithSilenceThreshold(v float64) Option {
	return func(d *Detector) { d.threshold = audio.Level(v) }
}

// WithSilenceDuration sets the silence debounce.
func WithSilenceDuration(dur time.Duration) Option {
	return func(d *Detector) { d.silence = dur }
}

// WithClock replaces the timer source.
func WithClock(c Clock) Option {
	return func(d *Detector) { d.clock = c }
}

// OnVoiceStart registers a callback fired when an utterance starts.
func OnVoiceStart(fn func()) Option {
	return func(d *Detector) { d.onVoiceStart = append(d.onVoiceStart, fn) }
}

// OnVoiceEnd registers a callback receiving every finalized utterance.
func OnVoiceEnd(fn func(*audio.Clip)) Option {
	return func(d *Detector) { d.onVoiceEnd = append(d.onVoiceEnd, fn) }
}

// OnLevel registers a callback receiving every loudness sample while the
// microphone is open.
func OnLevel(fn func(audio.Level)) Option {
	return func(d *Detector) { d.onLevel = append(d.onLevel, fn) }
}

// OnError registers a callback for device and recorder failures.
func OnError(fn func(error)) Option {
	return func(d *Detector) { d.onError = append(d.onError, fn) }
}

// OnStateChange registers a callback fired after every state transition.
func OnStateChange(fn func(State)) Option {
	return func(d *Detector) { d.onState = append(d.onState, fn) }
}

// Detector is the voice activity state machine. Safe for concurrent use.
type Detector struct {
	capture   Capture
	rec       Recorder
	clock     Clock
	threshold audio.Level
	silence   time.Duration

	onVoiceStart []func()
	onVoiceEnd   []func(*audio.Clip)
	onLevel      []func(audio.Level)
	onError      []func(error)
	onState      []func(State)

	mu    sync.Mutex
	state State
	timer Timer
	// gen identifies the armed silence timer; a firing timer whose
	// generation no longer matches is stale.
	gen uint64

	qmu      sync.Mutex
	qidle    *sync.Cond
	queue    []func()
	draining bool
}

// New wires a detector to capture and rec. The detector registers its level
// and error observers on capture immediately.
func New(capture Capture, rec Recorder, opts ...Option) *Detector {
	d := &Detector{
		capture:   capture,
		rec:       rec,
		clock:     SystemClock{},
		threshold: DefaultSilenceThreshold,
		silence:   DefaultSilenceDuration,
	}
	d.qidle = sync.NewCond(&d.qmu)
	for _, o := range opts {
		o(d)
	}
	capture.OnLevel(d.handleLevel)
	capture.OnError(d.handleCaptureError)
	return d
}

// Observer receives detector events. Nil fields are ignored.
type Observer struct {
	VoiceStart  func()
	VoiceEnd    func(*audio.Clip)
	Level       func(audio.Level)
	Error       func(error)
	StateChange func(State)
}

// AddObserver registers o's callbacks alongside those given as options.
func (d *Detector) AddObserver(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.VoiceStart != nil {
		d.onVoiceStart = append(d.onVoiceStart, o.VoiceStart)
	}
	if o.VoiceEnd != nil {
		d.onVoiceEnd = append(d.onVoiceEnd, o.VoiceEnd)
	}
	if o.Level != nil {
		d.onLevel = append(d.onLevel, o.Level)
	}
	if o.Error != nil {
		d.onError = append(d.onError, o.Error)
	}
	if o.StateChange != nil {
		d.onState = append(d.onState, o.StateChange)
	}
}

// Tune changes the threshold and silence debounce. Non-positive values keep
// the current setting. A pending silence timer keeps its original deadline.
func (d *Detector) Tune(threshold float64, silence time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if threshold > 0 {
		d.threshold = audio.Level(threshold)
	}
	if silence > 0 {
		d.silence = silence
	}
}

// State returns the current state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// StartListening opens the microphone and moves to Listening. It is a no-op
// unless the detector is Idle. When the device cannot be opened the error is
// returned, OnError fires and the detector stays Idle.
func (d *Detector) StartListening(ctx context.Context) error {
	d.mu.Lock()
	if d.state != Idle {
		d.mu.Unlock()
		return nil
	}
	if err := d.capture.Start(ctx); err != nil {
		err = fmt.Errorf("detector: start listening: %w", err)
		d.enqueueError(err)
		d.mu.Unlock()
		d.dispatch()
		return err
	}
	d.setState(Listening)
	d.mu.Unlock()

	slog.Info("detector: listening", "threshold", float64(d.threshold), "silence", d.silence)
	d.dispatch()
	return nil
}

// StopRecording ends the current utterance immediately, as if the silence
// timer had fired. It does nothing unless the detector is Speaking.
func (d *Detector) StopRecording() {
	d.mu.Lock()
	if d.state != Speaking {
		d.mu.Unlock()
		return
	}
	d.endUtterance()
	d.mu.Unlock()
	d.dispatch()
}

// StopListening releases the microphone, clears the silence timer and drops
// any in-flight recording without emitting a clip. Idempotent.
func (d *Detector) StopListening() {
	d.mu.Lock()
	if d.state == Idle {
		d.mu.Unlock()
		return
	}
	d.cancelTimer()
	if d.state == Speaking {
		d.rec.Abort()
	}
	d.setState(Idle)
	d.mu.Unlock()

	// Stop waits for the level goroutine, which may be blocked on d.mu.
	if err := d.capture.Stop(); err != nil {
		slog.Warn("detector: stop capture", "error", err)
	}
	slog.Info("detector: stopped listening")
	d.dispatch()
}

func (d *Detector) handleLevel(level audio.Level) {
	d.mu.Lock()
	if d.state == Idle {
		d.mu.Unlock()
		return
	}
	for _, fn := range d.onLevel {
		d.enqueue(func() { fn(level) })
	}

	loud := level > d.threshold
	switch d.state {
	case Listening:
		if loud {
			d.startUtterance()
		}
	case Speaking:
		if loud {
			d.cancelTimer()
		} else if d.timer == nil {
			d.armTimer()
		}
	}
	d.mu.Unlock()
	d.dispatch()
}

// startUtterance moves Listening to Speaking. Caller holds d.mu.
func (d *Detector) startUtterance() {
	d.cancelTimer()
	if err := d.rec.Begin(d.capture); err != nil {
		d.enqueueError(fmt.Errorf("detector: begin recording: %w", err))
		return
	}
	d.setState(Speaking)
	slog.Debug("detector: voice start")
	for _, fn := range d.onVoiceStart {
		d.enqueue(fn)
	}
}

// endUtterance moves Speaking to Listening and emits the clip. Caller holds
// d.mu.
func (d *Detector) endUtterance() {
	d.cancelTimer()
	d.setState(Listening)

	clip, err := d.rec.End()
	switch {
	case errors.Is(err, recorder.ErrDiscarded):
		slog.Debug("detector: short utterance discarded")
		return
	case err != nil:
		d.enqueueError(fmt.Errorf("detector: end recording: %w", err))
		return
	}
	slog.Debug("detector: voice end", "duration", clip.Duration)
	for _, fn := range d.onVoiceEnd {
		d.enqueue(func() { fn(clip) })
	}
}

// armTimer starts the silence timer. Caller holds d.mu.
func (d *Detector) armTimer() {
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.silence, func() { d.silenceElapsed(gen) })
}

// cancelTimer stops and forgets the silence timer. Caller holds d.mu.
func (d *Detector) cancelTimer() {
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.gen++
}

func (d *Detector) silenceElapsed(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.timer == nil || d.state != Speaking {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.endUtterance()
	d.mu.Unlock()
	d.dispatch()
}

func (d *Detector) handleCaptureError(err error) {
	d.mu.Lock()
	if d.state == Idle {
		d.mu.Unlock()
		return
	}
	d.cancelTimer()
	if d.state == Speaking {
		d.rec.Abort()
	}
	d.setState(Idle)
	d.enqueueError(fmt.Errorf("detector: microphone: %w", err))
	d.mu.Unlock()

	slog.Warn("detector: microphone lost", "error", err)
	d.dispatch()
}

// setState records s and queues the change notification. Caller holds d.mu.
func (d *Detector) setState(s State) {
	if d.state == s {
		return
	}
	d.state = s
	for _, fn := range d.onState {
		d.enqueue(func() { fn(s) })
	}
}

// enqueueError queues err for every error observer. Caller holds d.mu.
func (d *Detector) enqueueError(err error) {
	for _, fn := range d.onError {
		d.enqueue(func() { fn(err) })
	}
}

func (d *Detector) enqueue(fn func()) {
	d.qmu.Lock()
	d.queue = append(d.queue, fn)
	d.qmu.Unlock()
}

// dispatch starts the dispatch goroutine unless one is already draining the
// queue. A single drainer keeps callbacks in enqueue order.
func (d *Detector) dispatch() {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	if d.draining || len(d.queue) == 0 {
		return
	}
	d.draining = true
	go d.drain()
}

func (d *Detector) drain() {
	d.qmu.Lock()
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.qmu.Unlock()
		fn()
		d.qmu.Lock()
	}
	d.draining = false
	d.qidle.Broadcast()
	d.qmu.Unlock()
}

// Flush blocks until every callback queued so far has run. It must not be
// called from a callback.
func (d *Detector) Flush() {
	d.qmu.Lock()
	defer d.qmu.Unlock()
	for d.draining || len(d.queue) > 0 {
		d.qidle.Wait()
	}
}
