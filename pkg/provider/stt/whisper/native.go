package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/types"
)

// modelRate is the only input rate whisper.cpp models accept.
const modelRate = 16000

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider runs whisper.cpp in-process through its CGO bindings.
// libwhisper.a and whisper.h must be reachable through LIBRARY_PATH and
// C_INCLUDE_PATH at build time.
//
// The model is loaded once and shared. Each call gets its own whisper
// context; at most Parallel calls run inference at the same time.
type NativeProvider struct {
	model   whisperlib.Model
	threads uint
	slots   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*nativeConfig)

type nativeConfig struct {
	threads  uint
	parallel int
}

// WithNativeThreads sets the CPU threads per inference. Zero keeps the
// whisper.cpp default.
func WithNativeThreads(n uint) NativeOption {
	return func(c *nativeConfig) { c.threads = n }
}

// WithNativeParallel bounds concurrent inferences. Default 1.
func WithNativeParallel(n int) NativeOption {
	return func(c *nativeConfig) { c.parallel = n }
}

// NewNative loads the model at modelPath. Call Close to free it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	cfg := nativeConfig{parallel: 1}
	for _, o := range opts {
		o(&cfg)
	}

	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	return &NativeProvider{
		model:   model,
		threads: cfg.threads,
		slots:   make(chan struct{}, max(cfg.parallel, 1)),
	}, nil
}

// Close releases the model. Safe to call more than once.
func (p *NativeProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.model != nil {
			p.closeErr = p.model.Close()
		}
	})
	return p.closeErr
}

// Transcribe converts clip to 16 kHz mono float samples and runs inference.
// Inference itself is not interruptible; ctx bounds the wait for a free
// slot.
func (p *NativeProvider) Transcribe(ctx context.Context, clip *audio.Clip, opts stt.Options) (stt.Transcript, error) {
	if clip == nil {
		return stt.Transcript{}, errors.New("whisper: nil clip")
	}
	select {
	case p.slots <- struct{}{}:
		defer func() { <-p.slots }()
	case <-ctx.Done():
		return stt.Transcript{}, fmt.Errorf("whisper: %w", ctx.Err())
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
	if lang := requestLanguage(opts); wctx.SetLanguage(lang) != nil {
		slog.Warn("whisper: language not supported by model, using default", "language", lang)
	}
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}

	if err := wctx.Process(modelSamples(clip), nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}
	text, err := collectSegments(wctx)
	if err != nil {
		return stt.Transcript{}, err
	}

	detected := opts.Language
	if detected == "" {
		detected = wctx.DetectedLanguage()
	}
	return stt.Transcript{
		Text:     text,
		Language: types.NormalizeLanguage(detected),
		Duration: clip.Duration,
	}, nil
}

// modelSamples downmixes and resamples clip to the model's input format.
func modelSamples(clip *audio.Clip) []float32 {
	pcm := audio.Convert(clip.PCM(), clip.Format, audio.Format{SampleRate: modelRate, Channels: 1})
	return audio.PCMToFloat32(pcm, 1)
}

// collectSegments joins the non-blank segment texts of a processed context.
func collectSegments(wctx whisperlib.Context) (string, error) {
	var parts []string
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			return strings.Join(parts, " "), nil
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
}
