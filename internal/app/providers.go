package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/resilience"
	"github.com/MrWong99/polyglot/pkg/provider/llm"
	"github.com/MrWong99/polyglot/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/polyglot/pkg/provider/llm/openai"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/provider/stt/deepgram"
	"github.com/MrWong99/polyglot/pkg/provider/stt/groq"
	"github.com/MrWong99/polyglot/pkg/provider/stt/whisper"
	"github.com/MrWong99/polyglot/pkg/provider/translate"
	"github.com/MrWong99/polyglot/pkg/provider/translate/deepl"
	llmtranslate "github.com/MrWong99/polyglot/pkg/provider/translate/llm"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
	"github.com/MrWong99/polyglot/pkg/provider/tts/coqui"
	"github.com/MrWong99/polyglot/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/polyglot/pkg/provider/vad"
	"github.com/MrWong99/polyglot/pkg/provider/vad/webrtc"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	STT       stt.Provider
	Translate translate.Provider
	TTS       tts.Provider
	LLM       llm.Provider
	VAD       vad.Engine

	// MinVoicedFrames is the speech filter's run length, read from the vad
	// entry's "min_voiced" option.
	MinVoicedFrames int

	// closers release providers holding native resources.
	closers []io.Closer
}

// Close releases every provider that holds native resources.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// RegisterBuiltinProviders wires every built-in provider factory into reg.
// The "llm" translator is registered by [BuildProviders] because it needs the
// already constructed language model.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	sttGroq := func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []groq.Option
		if entry.BaseURL != "" {
			opts = append(opts, groq.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, groq.WithModel(entry.Model))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, groq.WithTimeout(d))
		}
		return groq.New(entry.APIKey, opts...)
	}
	reg.RegisterSTT("groq", sttGroq)
	// OpenAI's hosted Whisper speaks the same API; only the base URL differs.
	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		if entry.BaseURL == "" {
			entry.BaseURL = "https://api.openai.com/v1"
		}
		if entry.Model == "" {
			entry.Model = "whisper-1"
		}
		return sttGroq(entry)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if _, ok := entry.Options["temperature"]; ok {
			opts = append(opts, whisper.WithTemperature(optFloat(entry.Options, "temperature")))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		if n := optInt(entry.Options, "parallel"); n > 0 {
			opts = append(opts, whisper.WithNativeParallel(n))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── Translate ─────────────────────────────────────────────────────────────

	reg.RegisterTranslate("deepl", func(entry config.ProviderEntry) (translate.Provider, error) {
		var opts []deepl.Option
		if entry.BaseURL != "" {
			opts = append(opts, deepl.WithBaseURL(entry.BaseURL))
		}
		if f := optString(entry.Options, "formality"); f != "" {
			opts = append(opts, deepl.WithFormality(f))
		}
		if id := optString(entry.Options, "glossary_id"); id != "" {
			opts = append(opts, deepl.WithGlossaryID(id))
		}
		return deepl.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		stability, similarity := optFloat(entry.Options, "stability"), optFloat(entry.Options, "similarity_boost")
		if stability > 0 || similarity > 0 {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// openai is served by the native SDK above; any-llm-go covers the rest.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []webrtc.Option
		if _, ok := entry.Options["mode"]; ok {
			opts = append(opts, webrtc.WithMode(optInt(entry.Options, "mode")))
		}
		return webrtc.New(opts...)
	})
}

// BuildProviders instantiates the providers named in cfg, wrapping each slot
// in a failover group when fallbacks are configured.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Fallbacks.CircuitBreaker.MaxFailures,
			ResetTimeout: cfg.Fallbacks.CircuitBreaker.ResetTimeout,
			OnStateChange: func(name string, _, to resilience.State) {
				observe.DefaultMetrics().RecordBreakerChange(context.Background(), name, to.String())
			},
		},
		AttemptTimeout: cfg.Fallbacks.AttemptTimeout,
	}

	var err error
	if ps.LLM, err = buildSlot(ps, "llm", cfg.Providers.LLM, cfg.Fallbacks.LLM, reg.CreateLLM,
		func(p resilience.Member[llm.Provider], rest []resilience.Member[llm.Provider]) llm.Provider {
			return resilience.NewLLMFallback(fbCfg, p, rest...)
		}); err != nil {
		return nil, err
	}

	// The prompt translator is only constructible once the model exists.
	reg.RegisterTranslate("llm", func(entry config.ProviderEntry) (translate.Provider, error) {
		if ps.LLM == nil {
			return nil, errors.New(`translator "llm" needs providers.llm`)
		}
		var opts []llmtranslate.Option
		if t := optFloat(entry.Options, "temperature"); t > 0 {
			opts = append(opts, llmtranslate.WithTemperature(t))
		}
		if n := optInt(entry.Options, "max_tokens"); n > 0 {
			opts = append(opts, llmtranslate.WithMaxTokens(n))
		}
		return llmtranslate.New(ps.LLM, opts...)
	})

	if ps.STT, err = buildSlot(ps, "stt", cfg.Providers.STT, cfg.Fallbacks.STT, reg.CreateSTT,
		func(p resilience.Member[stt.Provider], rest []resilience.Member[stt.Provider]) stt.Provider {
			return resilience.NewSTTFallback(fbCfg, p, rest...)
		}); err != nil {
		return nil, err
	}

	if ps.Translate, err = buildSlot(ps, "translate", cfg.Providers.Translate, cfg.Fallbacks.Translate, reg.CreateTranslate,
		func(p resilience.Member[translate.Provider], rest []resilience.Member[translate.Provider]) translate.Provider {
			return resilience.NewTranslateFallback(fbCfg, p, rest...)
		}); err != nil {
		return nil, err
	}

	if ps.TTS, err = buildSlot(ps, "tts", cfg.Providers.TTS, cfg.Fallbacks.TTS, reg.CreateTTS,
		func(p resilience.Member[tts.Provider], rest []resilience.Member[tts.Provider]) tts.Provider {
			return resilience.NewTTSFallback(fbCfg, p, rest...)
		}); err != nil {
		return nil, err
	}

	if ps.VAD, err = buildSlot(ps, "vad", cfg.Providers.VAD, nil, reg.CreateVAD, nil); err != nil {
		return nil, err
	}
	ps.MinVoicedFrames = optInt(cfg.Providers.VAD.Options, "min_voiced")
	return ps, nil
}

// buildSlot creates the primary and fallbacks of one provider slot. An empty
// primary name leaves the slot nil; an unregistered name is logged and
// skipped. wrap is only called when at least one fallback was built.
func buildSlot[T any](
	ps *Providers,
	kind string,
	primary config.ProviderEntry,
	fallbacks []config.ProviderEntry,
	create func(config.ProviderEntry) (T, error),
	wrap func(resilience.Member[T], []resilience.Member[T]) T,
) (T, error) {
	var zero T
	if primary.Name == "" {
		return zero, nil
	}
	build := func(entry config.ProviderEntry) (T, bool, error) {
		p, err := create(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not available, skipping", "kind", kind, "name", entry.Name)
			return zero, false, nil
		}
		if err != nil {
			return zero, false, fmt.Errorf("app: create %s provider %q: %w", kind, entry.Name, err)
		}
		if c, ok := any(p).(io.Closer); ok {
			ps.closers = append(ps.closers, c)
		}
		slog.Info("provider created", "kind", kind, "name", entry.Name)
		return p, true, nil
	}

	p, ok, err := build(primary)
	if err != nil || !ok {
		return zero, err
	}
	var rest []resilience.Member[T]
	for _, entry := range fallbacks {
		fp, ok, err := build(entry)
		if err != nil {
			return zero, err
		}
		if ok {
			rest = append(rest, resilience.Member[T]{Name: entry.Name, Provider: fp})
		}
	}
	if len(rest) == 0 || wrap == nil {
		return p, nil
	}
	slog.Info("provider failover enabled", "kind", kind, "primary", primary.Name, "fallbacks", len(rest))
	return wrap(resilience.Member[T]{Name: primary.Name, Provider: p}, rest), nil
}

// ── Option helpers ────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt accepts YAML integers and whole floats.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// optDuration accepts Go duration strings ("30s") and plain seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	if s := optString(opts, key); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			slog.Warn("ignoring invalid duration option", "key", key, "value", s)
			return 0
		}
		return d
	}
	return time.Duration(optFloat(opts, key) * float64(time.Second))
}
