// Package recorder turns a live frame stream into finalized utterance clips.
//
// A [Recorder] is idle until [Recorder.Begin] subscribes it to a frame source.
// Every frame delivered between Begin and [Recorder.End] is appended to an
// in-memory buffer, and End encodes the buffer as one WAV [audio.Clip]. At
// most one recording is active per Recorder.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
)

var (
	// ErrNoStream is returned by Begin when there is no frame source.
	ErrNoStream = errors.New("recorder: no audio stream")

	// ErrAlreadyRecording is returned by Begin while a recording is active.
	ErrAlreadyRecording = errors.New("recorder: already recording")

	// ErrNotRecording is returned by End when no recording is active.
	ErrNotRecording = errors.New("recorder: not recording")

	// ErrTooShort is returned by End for recordings under the minimum
	// duration when the policy is [ShortError].
	ErrTooShort = errors.New("recorder: recording too short")

	// ErrDiscarded is returned by End for recordings under the minimum
	// duration when the policy is [ShortDiscard].
	ErrDiscarded = errors.New("recorder: recording discarded")
)

const (
	// DefaultMaxDuration caps a single recording.
	DefaultMaxDuration = 300 * time.Second

	// VoiceCloneMinDuration is the minimum sample length accepted for voice
	// cloning.
	VoiceCloneMinDuration = 60 * time.Second
)

// TooShortError reports a recording under the minimum duration. It matches
// [ErrTooShort] with errors.Is.
type TooShortError struct {
	Duration time.Duration
	Min      time.Duration
}

func (e *TooShortError) Error() string {
	return fmt.Sprintf("%s: %s < %s", ErrTooShort, e.Duration, e.Min)
}

func (e *TooShortError) Is(target error) bool { return target == ErrTooShort }

// ShortPolicy decides what End does with a recording under the minimum
// duration.
type ShortPolicy int

const (
	// ShortDiscard silently drops short recordings (End returns ErrDiscarded).
	ShortDiscard ShortPolicy = iota

	// ShortError reports short recordings as ErrTooShort.
	ShortError
)

// ParseShortPolicy maps "discard" and "error" to a policy. The empty string
// selects ShortDiscard.
func ParseShortPolicy(s string) (ShortPolicy, error) {
	switch s {
	case "", "discard":
		return ShortDiscard, nil
	case "error":
		return ShortError, nil
	}
	return ShortDiscard, fmt.Errorf("recorder: unknown short policy %q", s)
}

// String returns the config name of p.
func (p ShortPolicy) String() string {
	if p == ShortError {
		return "error"
	}
	return "discard"
}

// FrameSource is a live frame stream, satisfied by *audio.Capture.
type FrameSource interface {
	// Subscribe returns a frame channel and a cancel func that closes it.
	Subscribe() (<-chan audio.AudioFrame, func())

	// Format is the format of the frames.
	Format() audio.Format
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMinDuration sets the minimum clip length. Zero (default) accepts any
// length.
func WithMinDuration(d time.Duration) Option {
	return func(r *Recorder) { r.minDuration = d }
}

// WithMaxDuration caps the buffered audio. Frames past the cap are dropped.
// Zero removes the cap.
func WithMaxDuration(d time.Duration) Option {
	return func(r *Recorder) { r.maxDuration = d }
}

// WithShortPolicy sets the handling of recordings under the minimum.
func WithShortPolicy(p ShortPolicy) Option {
	return func(r *Recorder) { r.policy = p }
}

// WithClock overrides the wall clock used for clip timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder records frames between Begin and End. Safe for concurrent use.
type Recorder struct {
	minDuration time.Duration
	maxDuration time.Duration
	policy      ShortPolicy
	now         func() time.Time

	mu  sync.Mutex
	cur *recording
}

// New returns an idle Recorder.
func New(opts ...Option) *Recorder {
	r := &Recorder{
		maxDuration: DefaultMaxDuration,
		policy:      ShortDiscard,
		now:         time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// recording is one Begin..End session. buf is written only by the collector
// goroutine until done is closed.
type recording struct {
	cancel    func()
	done      chan struct{}
	startedAt time.Time
	format    audio.Format
	limit     int
	target    time.Duration
	full      chan struct{}

	buf      []byte
	frames   int
	overflow bool
	filled   bool
}

// Recording reports whether a recording is active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Begin subscribes to src and starts buffering frames.
func (r *Recorder) Begin(src FrameSource) error {
	_, err := r.begin(src, 0)
	return err
}

// begin starts a recording. A positive target closes the recording's full
// channel once that much audio is buffered.
func (r *Recorder) begin(src FrameSource, target time.Duration) (*recording, error) {
	if src == nil {
		return nil, ErrNoStream
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur != nil {
		return nil, ErrAlreadyRecording
	}

	frames, cancel := src.Subscribe()
	rec := &recording{
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: r.now(),
		format:    src.Format(),
		target:    target,
		full:      make(chan struct{}),
	}
	if r.maxDuration > 0 {
		rec.limit = int(r.maxDuration.Seconds() * float64(rec.format.BytesPerSecond()))
	}
	r.cur = rec
	slog.Debug("recorder: started", "format", rec.format.String())
	go rec.collect(frames)
	return rec, nil
}

func (rec *recording) collect(frames <-chan audio.AudioFrame) {
	defer close(rec.done)
	for f := range frames {
		if rec.frames == 0 && f.SampleRate > 0 && f.Channels > 0 {
			rec.format = audio.Format{SampleRate: f.SampleRate, Channels: f.Channels}
		}
		rec.frames++
		if rec.limit > 0 && len(rec.buf)+len(f.Data) > rec.limit {
			if !rec.overflow {
				rec.overflow = true
				slog.Warn("recorder: maximum duration reached, dropping further audio", "limit_bytes", rec.limit)
				rec.fill()
			}
			continue
		}
		rec.buf = append(rec.buf, f.Data...)
		if rec.target > 0 && rec.buffered() >= rec.target {
			rec.fill()
		}
	}
}

// buffered returns the duration of the audio collected so far.
func (rec *recording) buffered() time.Duration {
	f := rec.format
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(rec.buf) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

func (rec *recording) fill() {
	if !rec.filled {
		rec.filled = true
		close(rec.full)
	}
}

// detach removes the active recording and waits until every frame delivered
// before the call has been buffered.
func (r *Recorder) detach() *recording {
	r.mu.Lock()
	rec := r.cur
	r.cur = nil
	r.mu.Unlock()
	if rec == nil {
		return nil
	}
	rec.cancel()
	<-rec.done
	return rec
}

// End stops recording and returns the finalized clip.
func (r *Recorder) End() (*audio.Clip, error) {
	rec := r.detach()
	if rec == nil {
		return nil, ErrNotRecording
	}

	clip := audio.NewClip(rec.buf, rec.format, rec.startedAt, r.now())
	if r.minDuration > 0 && clip.Duration < r.minDuration {
		slog.Debug("recorder: recording under minimum duration",
			"duration", clip.Duration, "min", r.minDuration, "policy", r.policy.String())
		if r.policy == ShortError {
			return nil, &TooShortError{Duration: clip.Duration, Min: r.minDuration}
		}
		return nil, ErrDiscarded
	}

	slog.Debug("recorder: finalized clip", "duration", clip.Duration, "bytes", clip.Size(), "frames", rec.frames)
	return clip, nil
}

// Abort drops the active recording without producing a clip. Idempotent.
func (r *Recorder) Abort() {
	if rec := r.detach(); rec != nil {
		slog.Debug("recorder: aborted", "frames", rec.frames)
	}
}

// RecordFor records src until d of audio is buffered and returns the clip.
// The recording also ends when src stops delivering frames or the maximum
// duration is reached. The minimum duration applies as for End. Cancelling ctx
// aborts the recording.
func (r *Recorder) RecordFor(ctx context.Context, src FrameSource, d time.Duration) (*audio.Clip, error) {
	rec, err := r.begin(src, d)
	if err != nil {
		return nil, err
	}
	select {
	case <-rec.full:
	case <-rec.done:
	case <-ctx.Done():
		r.Abort()
		return nil, ctx.Err()
	}
	return r.End()
}
