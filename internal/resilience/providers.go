package resilience

import (
	"context"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/llm"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/types"
)

var (
	_ stt.Provider       = (*STTFallback)(nil)
	_ translate.Provider = (*TranslateFallback)(nil)
	_ translate.Detector = (*TranslateFallback)(nil)
	_ translate.Lister   = (*TranslateFallback)(nil)
	_ tts.Provider       = (*TTSFallback)(nil)
	_ llm.Provider       = (*LLMFallback)(nil)
)

// STTFallback transcribes with the first healthy recogniser.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

// NewSTTFallback chains primary and rest in order.
func NewSTTFallback(cfg FallbackConfig, primary Member[stt.Provider], rest ...Member[stt.Provider]) *STTFallback {
	return &STTFallback{NewFallbackGroup(cfg, primary, rest...)}
}

// Transcribe implements stt.Provider.
func (f *STTFallback) Transcribe(ctx context.Context, clip *audio.Clip, opts stt.Options) (stt.Transcript, error) {
	return Call(ctx, f.FallbackGroup, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, clip, opts)
	})
}

// TranslateFallback translates with the first healthy translator. Detection
// skips translators without a detector, and the language list comes from the
// primary.
type TranslateFallback struct {
	*FallbackGroup[translate.Provider]
}

// NewTranslateFallback chains primary and rest in order.
func NewTranslateFallback(cfg FallbackConfig, primary Member[translate.Provider], rest ...Member[translate.Provider]) *TranslateFallback {
	return &TranslateFallback{NewFallbackGroup(cfg, primary, rest...)}
}

// Translate implements translate.Provider.
func (f *TranslateFallback) Translate(ctx context.Context, text, target, source string) (string, error) {
	return Call(ctx, f.FallbackGroup, func(ctx context.Context, p translate.Provider) (string, error) {
		return p.Translate(ctx, text, target, source)
	})
}

// DetectLanguage implements translate.Detector. Translators that cannot
// detect are passed over without touching their breakers.
func (f *TranslateFallback) DetectLanguage(ctx context.Context, text string) (string, error) {
	return call(ctx, f.FallbackGroup, func(p translate.Provider) bool {
		_, ok := p.(translate.Detector)
		return ok
	}, func(ctx context.Context, p translate.Provider) (string, error) {
		return p.(translate.Detector).DetectLanguage(ctx, text)
	})
}

// SupportedLanguages implements translate.Lister, falling back to the
// built-in catalogue when the primary publishes no list.
func (f *TranslateFallback) SupportedLanguages(ctx context.Context) ([]types.Language, error) {
	if l, ok := f.Primary().(translate.Lister); ok {
		return l.SupportedLanguages(ctx)
	}
	return types.Languages, nil
}

// TTSFallback synthesizes with the first healthy voice service.
//
// Voice IDs only mean something to the service that issued them, so listing
// and cloning always go to the primary.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

// NewTTSFallback chains primary and rest in order.
func NewTTSFallback(cfg FallbackConfig, primary Member[tts.Provider], rest ...Member[tts.Provider]) *TTSFallback {
	return &TTSFallback{NewFallbackGroup(cfg, primary, rest...)}
}

// Synthesize implements tts.Provider.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voiceID string) (*types.SynthesizedAudio, error) {
	return Call(ctx, f.FallbackGroup, func(ctx context.Context, p tts.Provider) (*types.SynthesizedAudio, error) {
		return p.Synthesize(ctx, text, voiceID)
	})
}

// ListVoices implements tts.Provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return f.Primary().ListVoices(ctx)
}

// CloneVoice implements tts.Provider.
func (f *TTSFallback) CloneVoice(ctx context.Context, name string, samples [][]byte) (*types.VoiceProfile, error) {
	return f.Primary().CloneVoice(ctx, name, samples)
}

// LLMFallback completes with the first healthy language model.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

// NewLLMFallback chains primary and rest in order.
func NewLLMFallback(cfg FallbackConfig, primary Member[llm.Provider], rest ...Member[llm.Provider]) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(cfg, primary, rest...)}
}

// Complete implements llm.Provider.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(ctx, f.FallbackGroup, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
