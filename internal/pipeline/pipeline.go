// Package pipeline turns one recorded utterance into a translation.
//
// A [Pipeline] runs three stages strictly in order: transcribe the clip,
// translate the transcript and, when a synthesizer and a voice are available,
// synthesize the translation. Progress is published after every stage
// transition (25, 50, 75, 100) and reset to 0 when the run ends, however it
// ends. Only one run may be in flight at a time; a concurrent [Pipeline.Process]
// call fails immediately with [ErrBusy].
//
// Any transcription or translation failure ends the run and discards partial
// results. A synthesis failure is logged and the result is returned without
// audio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/transcript"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/provider/vad"
	"github.com/MrWong99/polyglot/pkg/types"
)

// vadFormat is what the speech filter analyses, whatever the clip format.
var vadFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Request carries the per-run language and voice settings.
type Request struct {
	// SourceLanguage is the spoken language. With AutoDetect it is only used
	// as the reported FromLanguage when the provider detects nothing.
	SourceLanguage string

	// TargetLanguage is required.
	TargetLanguage string

	// AutoDetect omits the language hint from transcription and the source
	// language from translation.
	AutoDetect bool

	Voice VoiceSelection

	// Glossary terms are passed to the STT provider as a prompt and restored
	// in the transcript by the corrector.
	Glossary []string

	// OnProgress, when set, receives this run's status updates after the
	// pipeline-wide observers.
	OnProgress func(Status)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSynthesizer enables the synthesis stage.
func WithSynthesizer(p tts.Provider) Option {
	return func(pl *Pipeline) { pl.tts = p }
}

// WithCorrector enables glossary correction of transcripts.
func WithCorrector(c transcript.Corrector) Option {
	return func(pl *Pipeline) { pl.corrector = c }
}

// WithSpeechFilter rejects clips in which e finds fewer than minVoiced
// consecutive voiced frames before they reach the STT provider. minVoiced
// below one means a single frame.
func WithSpeechFilter(e vad.Engine, minVoiced int) Option {
	return func(pl *Pipeline) {
		pl.vad = e
		pl.minVoiced = minVoiced
	}
}

// WithMetrics records stage latencies and outcomes.
func WithMetrics(m *observe.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithProgressObserver registers fn to receive every status change. fn runs
// on the goroutine calling Process and must not block.
func WithProgressObserver(fn func(Status)) Option {
	return func(pl *Pipeline) { pl.observers = append(pl.observers, fn) }
}

// WithClock overrides the time source for result timestamps and latency.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// WithIDGenerator overrides the run ID source. Defaults to random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(pl *Pipeline) { pl.newID = fn }
}

// Pipeline is the sequential transcribe → translate → synthesize runner.
// Safe for concurrent use; concurrent runs are rejected.
type Pipeline struct {
	stt       stt.Provider
	tr        translate.Provider
	tts       tts.Provider
	corrector transcript.Corrector
	vad       vad.Engine
	minVoiced int
	metrics   *observe.Metrics
	observers []func(Status)
	now       func() time.Time
	newID     func() string

	busy atomic.Bool

	mu     sync.Mutex
	status Status
}

// New returns a pipeline transcribing with s and translating with tr.
func New(s stt.Provider, tr translate.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		stt:   s,
		tr:    tr,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Processing reports whether a run is in flight.
func (p *Pipeline) Processing() bool { return p.busy.Load() }

// Status returns the current progress snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Process runs clip through every stage and returns the result. On failure
// the result is nil and the error is a *StageError, or ErrBusy when another
// run is in flight.
func (p *Pipeline) Process(ctx context.Context, clip *audio.Clip, req Request) (*types.TranslationResult, error) {
	if p.stt == nil || p.tr == nil {
		return nil, &StageError{Stage: StageIdle, Code: ErrNotConfigured, Message: msgNotConfigured}
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		return nil, &StageError{Stage: StageIdle, Code: ErrNotConfigured, Message: msgNoTarget}
	}
	if !p.busy.CompareAndSwap(false, true) {
		if p.metrics != nil && clip != nil {
			p.metrics.RecordUtterance(ctx, observe.OutcomeRejected, clip.Duration)
		}
		return nil, ErrBusy
	}

	r := &run{p: p, id: p.newID(), clip: clip, req: req, started: p.now()}
	defer r.finish()
	if p.metrics != nil {
		defer p.metrics.TrackRun(ctx)()
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	result, err := r.execute(ctx)
	observe.EndSpan(span, err)
	r.record(ctx, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// run is one Process invocation.
type run struct {
	p       *Pipeline
	id      string
	clip    *audio.Clip
	req     Request
	started time.Time
}

func (r *run) execute(ctx context.Context) (*types.TranslationResult, error) {
	log := observe.Logger(ctx).With("run_id", r.id)

	text, tr, err := r.transcribe(ctx, log)
	if err != nil {
		return nil, err
	}

	translated, err := r.translate(ctx, text)
	if err != nil {
		return nil, err
	}

	from := r.req.SourceLanguage
	if r.req.AutoDetect && tr.Language != "" {
		from = types.NormalizeLanguage(tr.Language)
	}
	confidence := tr.Confidence
	if confidence <= 0 {
		confidence = types.DefaultConfidence
	}
	result := &types.TranslationResult{
		ID:             r.id,
		OriginalText:   text,
		TranslatedText: translated,
		FromLanguage:   from,
		ToLanguage:     r.req.TargetLanguage,
		Confidence:     confidence,
	}

	if synth, err := r.synthesize(ctx, translated); err != nil {
		log.Warn("pipeline: synthesis failed, returning text only", "error", err)
	} else {
		result.Audio = synth
	}

	r.advance(StageComplete)
	result.Timestamp = r.p.now()
	log.Info("pipeline: translated utterance",
		"from", result.FromLanguage,
		"to", result.ToLanguage,
		"chars", len(result.TranslatedText),
		"audio", result.HasAudio(),
	)
	return result, nil
}

func (r *run) transcribe(ctx context.Context, log *slog.Logger) (string, stt.Transcript, error) {
	r.advance(StageTranscribing)
	fail := func(msg string, err error) (string, stt.Transcript, error) {
		return "", stt.Transcript{}, &StageError{Stage: StageTranscribing, Code: ErrTranscriptionFailed, Message: msg, Err: err}
	}

	if r.clip == nil || r.clip.Duration == 0 {
		return fail(msgNoSpeech, ErrNoSpeech)
	}
	if r.p.vad != nil {
		pcm := audio.Convert(r.clip.PCM(), r.clip.Format, vadFormat)
		voiced, err := vad.HasSpeech(r.p.vad, vad.Config{SampleRate: vadFormat.SampleRate, MinVoiced: r.p.minVoiced}, pcm)
		switch {
		case err != nil:
			log.Warn("pipeline: speech filter unavailable, transcribing anyway", "error", err)
		case !voiced:
			return fail(msgNoSpeech, ErrNoSpeech)
		}
	}

	opts := stt.Options{Prompt: strings.Join(r.req.Glossary, ", ")}
	if !r.req.AutoDetect {
		opts.Language = r.req.SourceLanguage
	}

	start := r.p.now()
	tr, err := r.p.stt.Transcribe(ctx, r.clip, opts)
	r.observeProvider(ctx, "transcribe", r.p.stt, start, err)
	if err != nil {
		return fail(msgTranscribeFailed, err)
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return fail(msgNoSpeech, ErrNoSpeech)
	}

	if r.p.corrector != nil && len(r.req.Glossary) > 0 {
		res, err := r.p.corrector.Correct(ctx, text, r.req.Glossary)
		switch {
		case err != nil:
			log.Warn("pipeline: glossary correction failed, using raw transcript", "error", err)
		case res.Changed():
			for _, c := range res.Corrections {
				log.Debug("pipeline: glossary correction",
					"original", c.Original, "corrected", c.Corrected, "confidence", c.Confidence)
			}
			text = res.Corrected
		}
	}
	return text, tr, nil
}

func (r *run) translate(ctx context.Context, text string) (string, error) {
	r.advance(StageTranslating)

	source := r.req.SourceLanguage
	if r.req.AutoDetect {
		source = ""
	}

	start := r.p.now()
	out, err := r.p.tr.Translate(ctx, text, r.req.TargetLanguage, source)
	r.observeProvider(ctx, "translate", r.p.tr, start, err)
	if err != nil {
		return "", &StageError{Stage: StageTranslating, Code: ErrTranslationFailed, Message: msgTranslationFailed, Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", &StageError{Stage: StageTranslating, Code: ErrTranslationFailed, Message: msgTranslationFailed,
			Err: errors.New("empty translation")}
	}
	return out, nil
}

// synthesize returns nil audio and nil error when synthesis is skipped.
func (r *run) synthesize(ctx context.Context, text string) (*types.SynthesizedAudio, error) {
	if r.p.tts == nil {
		return nil, nil
	}
	voice := r.req.Voice.Resolve()
	if voice == "" {
		slog.Debug("pipeline: no voice available, skipping synthesis", "run_id", r.id)
		return nil, nil
	}
	r.advance(StageSynthesizing)

	start := r.p.now()
	out, err := r.p.tts.Synthesize(ctx, text, voice)
	r.observeProvider(ctx, "synthesize", r.p.tts, start, err)
	if err == nil && (out == nil || len(out.Data) == 0) {
		err = errors.New("empty audio")
	}
	if err != nil {
		return nil, &StageError{Stage: StageSynthesizing, Code: ErrSynthesisFailed, Message: msgSynthesisFailed, Err: err}
	}
	return out, nil
}

// advance publishes s as the current stage.
func (r *run) advance(s Stage) {
	r.publish(Status{
		RunID:      r.id,
		Stage:      s,
		Label:      s.Label(),
		Progress:   s.Progress(),
		Processing: true,
	})
}

// finish resets the status and releases the pipeline.
func (r *run) finish() {
	r.publish(Status{})
	r.p.busy.Store(false)
}

func (r *run) publish(s Status) {
	r.p.mu.Lock()
	r.p.status = s
	r.p.mu.Unlock()
	for _, fn := range r.p.observers {
		fn(s)
	}
	if r.req.OnProgress != nil {
		r.req.OnProgress(s)
	}
}

func (r *run) observeProvider(ctx context.Context, stage string, provider any, start time.Time, err error) {
	m := r.p.metrics
	if m == nil {
		return
	}
	m.RecordProviderCall(ctx, providerName(provider), stage, r.p.now().Sub(start), err)
}

func (r *run) record(ctx context.Context, err error) {
	m := r.p.metrics
	if m == nil {
		return
	}
	var length time.Duration
	if r.clip != nil {
		length = r.clip.Duration
	}
	outcome := observe.OutcomeTranslated
	switch {
	case errors.Is(err, ErrNoSpeech):
		outcome = observe.OutcomeNoSpeech
	case err != nil:
		outcome = observe.OutcomeFailed
	}
	m.RecordUtterance(ctx, outcome, length)
	m.PipelineDuration.Record(ctx, r.p.now().Sub(r.started).Seconds())
}

// providerName labels metrics. Providers may implement Name() string.
func providerName(p any) string {
	if n, ok := p.(interface{ Name() string }); ok {
		return n.Name()
	}
	name := fmt.Sprintf("%T", p)
	return strings.TrimPrefix(name, "*")
}
