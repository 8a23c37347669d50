package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/polyglot/internal/recorder"
	"github.com/MrWong99/polyglot/pkg/types"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"groq", "openai", "whisper", "whisper-native", "deepgram"},
	"translate": {"deepl", "llm"},
	"tts":       {"elevenlabs", "coqui"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"vad":       {"webrtc"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultSampleRate       = 16000
	DefaultChannels         = 1
	DefaultFrameSize        = 512
	DefaultLevelInterval    = 20 * time.Millisecond
	DefaultSilenceThreshold = 10.0
	DefaultSilenceDuration  = time.Second
	DefaultSourceLanguage   = "es"
	DefaultTargetLanguage   = "en"
	DefaultRelayURL         = "ws://localhost:8090"
	DefaultListenAddr       = ":8090"
	DefaultObserveAddr      = ":9090"
	DefaultMaxEntries       = 100
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued setting that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	setDefault(&cfg.Audio.SampleRate, DefaultSampleRate)
	setDefault(&cfg.Audio.Channels, DefaultChannels)
	setDefault(&cfg.Audio.FrameSize, DefaultFrameSize)
	setDefault(&cfg.Audio.LevelInterval, DefaultLevelInterval)
	setDefault(&cfg.VAD.SilenceThreshold, DefaultSilenceThreshold)
	setDefault(&cfg.VAD.SilenceDuration, DefaultSilenceDuration)
	setDefault(&cfg.Recording.MaxDuration, recorder.DefaultMaxDuration)
	setDefault(&cfg.Recording.ShortPolicy, recorder.ShortDiscard.String())
	setDefault(&cfg.Translation.SourceLanguage, DefaultSourceLanguage)
	setDefault(&cfg.Translation.TargetLanguage, DefaultTargetLanguage)
	setDefault(&cfg.Relay.URL, DefaultRelayURL)
	setDefault(&cfg.History.Backend, HistoryMemory)
	setDefault(&cfg.History.MaxEntries, DefaultMaxEntries)
	setDefault(&cfg.Server.ListenAddr, DefaultListenAddr)
	setDefault(&cfg.Server.ObserveAddr, DefaultObserveAddr)
}

func setDefault[T comparable](field *T, v T) {
	var zero T
	if *field == zero {
		*field = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [1, 2]", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// VAD and recording
	if cfg.VAD.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.2f must not be negative", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SilenceDuration < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_duration %s must not be negative", cfg.VAD.SilenceDuration))
	}
	if cfg.Recording.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("recording.min_duration %s must not be negative", cfg.Recording.MinDuration))
	}
	if cfg.Recording.MaxDuration > 0 && cfg.Recording.MinDuration > cfg.Recording.MaxDuration {
		errs = append(errs, fmt.Errorf("recording.min_duration %s exceeds max_duration %s", cfg.Recording.MinDuration, cfg.Recording.MaxDuration))
	}
	if _, err := recorder.ParseShortPolicy(cfg.Recording.ShortPolicy); err != nil {
		errs = append(errs, fmt.Errorf("recording.short_policy: %w", err))
	}

	// Languages
	if src := cfg.Translation.SourceLanguage; src != "" && !types.IsSupportedLanguage(src) {
		errs = append(errs, fmt.Errorf("translation.source_language %q is not supported", src))
	}
	if dst := cfg.Translation.TargetLanguage; dst != "" && !types.IsSupportedLanguage(dst) {
		errs = append(errs, fmt.Errorf("translation.target_language %q is not supported", dst))
	}
	if !cfg.Translation.AutoDetect && cfg.Translation.SourceLanguage != "" &&
		types.NormalizeLanguage(cfg.Translation.SourceLanguage) == types.NormalizeLanguage(cfg.Translation.TargetLanguage) {
		slog.Warn("translation.source_language equals target_language; translations will echo the input",
			"language", cfg.Translation.SourceLanguage)
	}

	if cb := cfg.Fallbacks.CircuitBreaker; cb.MaxFailures < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("fallbacks.circuit_breaker values must not be negative"))
	}
	if cfg.Fallbacks.AttemptTimeout < 0 {
		errs = append(errs, fmt.Errorf("fallbacks.attempt_timeout must not be negative"))
	}

	if v := cfg.Voices.OutputVolume; v != nil && (*v < 0 || *v > 1) {
		errs = append(errs, fmt.Errorf("voices.output_volume %.2f is out of range [0, 1]", *v))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	for kind, entries := range map[string][]ProviderEntry{
		"stt":       cfg.Fallbacks.STT,
		"translate": cfg.Fallbacks.Translate,
		"tts":       cfg.Fallbacks.TTS,
		"llm":       cfg.Fallbacks.LLM,
	} {
		for i, e := range entries {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("fallbacks.%s[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}

	// Provider cross-validation
	if cfg.Providers.Translate.Name == "llm" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New(`providers.translate "llm" requires providers.llm to be configured`))
	}
	if cfg.Providers.STT.Name == "" || cfg.Providers.Translate.Name == "" {
		slog.Warn("providers.stt or providers.translate is not configured; utterances cannot be translated")
	}
	if cfg.Providers.TTS.Name == "" && cfg.Voices.Selected != "" {
		slog.Warn("voices.selected is set but providers.tts is not configured; translations will not be spoken")
	}

	// History
	if cfg.History.Backend != "" && !cfg.History.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("history.backend %q is invalid; valid values: memory, postgres", cfg.History.Backend))
	}
	if cfg.History.Backend == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.backend is postgres"))
	}
	if cfg.History.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("history.max_entries %d must not be negative", cfg.History.MaxEntries))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
