// Package config provides the configuration schema, loader, provider registry
// and file watcher for the polyglot translator.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// HistoryBackend selects where transcripts are stored.
type HistoryBackend string

const (
	HistoryMemory   HistoryBackend = "memory"
	HistoryPostgres HistoryBackend = "postgres"
)

// IsValid reports whether b is a recognised backend.
func (b HistoryBackend) IsValid() bool {
	return b == HistoryMemory || b == HistoryPostgres
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel    LogLevel          `yaml:"log_level"`
	Audio       AudioConfig       `yaml:"audio"`
	VAD         VADConfig         `yaml:"vad"`
	Recording   RecordingConfig   `yaml:"recording"`
	Translation TranslationConfig `yaml:"translation"`
	Voices      VoicesConfig      `yaml:"voices"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Fallbacks   FallbacksConfig   `yaml:"fallbacks"`
	Relay       RelayConfig       `yaml:"relay"`
	History     HistoryConfig     `yaml:"history"`
	Server      ServerConfig      `yaml:"server"`
}

// AudioConfig describes the microphone.
type AudioConfig struct {
	// Device is a case-insensitive substring of the input device name.
	// Empty selects the default input.
	Device string `yaml:"device"`

	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameSize is the number of samples per channel delivered per read.
	FrameSize int `yaml:"frame_size"`

	// LevelInterval is the loudness sampling period.
	LevelInterval time.Duration `yaml:"level_interval"`
}

// VADConfig tunes the loudness-based voice detector.
type VADConfig struct {
	// SilenceThreshold is the loudness a sample must exceed to count as
	// speech, on the RMS × 1000 scale.
	SilenceThreshold float64 `yaml:"silence_threshold"`

	// SilenceDuration is how long the level must stay quiet to end an
	// utterance.
	SilenceDuration time.Duration `yaml:"silence_duration"`
}

// RecordingConfig bounds utterance length.
type RecordingConfig struct {
	// MinDuration rejects shorter utterances. Zero disables the check.
	MinDuration time.Duration `yaml:"min_duration"`

	// MaxDuration caps the buffered audio.
	MaxDuration time.Duration `yaml:"max_duration"`

	// ShortPolicy is "discard" or "error".
	ShortPolicy string `yaml:"short_policy"`
}

// TranslationConfig holds the language settings.
type TranslationConfig struct {
	SourceLanguage  string   `yaml:"source_language"`
	TargetLanguage  string   `yaml:"target_language"`
	AutoDetect      bool     `yaml:"auto_detect"`
	SaveTranscripts *bool    `yaml:"save_transcripts"`
	Glossary        []string `yaml:"glossary"`
}

// VoicesConfig selects the synthesis voice and playback.
type VoicesConfig struct {
	Selected string   `yaml:"selected"`
	Fallback []string `yaml:"fallback"`
	Saved    []string `yaml:"saved"`
	AutoPlay *bool    `yaml:"auto_play"`

	// OutputVolume is the playback gain in [0, 1].
	OutputVolume *float64 `yaml:"output_volume"`
}

// ProvidersConfig declares which provider implementation to use for each
// capability. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT       ProviderEntry `yaml:"stt"`
	Translate ProviderEntry `yaml:"translate"`
	TTS       ProviderEntry `yaml:"tts"`
	LLM       ProviderEntry `yaml:"llm"`
	VAD       ProviderEntry `yaml:"vad"`
}

// FallbacksConfig lists additional providers tried in order when the primary
// fails.
type FallbacksConfig struct {
	STT       []ProviderEntry `yaml:"stt"`
	Translate []ProviderEntry `yaml:"translate"`
	TTS       []ProviderEntry `yaml:"tts"`
	LLM       []ProviderEntry `yaml:"llm"`

	// CircuitBreaker tunes the breaker in front of every provider of a
	// fallback chain. Zero fields keep the built-in defaults.
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`

	// AttemptTimeout bounds each provider call of a chain so a hanging
	// provider leaves time for the next. Zero disables it.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// BreakerConfig tunes a provider circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that stops calls to
	// a provider.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a tripped provider is skipped before it is
	// probed again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq", "deepl").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// RelayConfig points at the websocket relay server.
type RelayConfig struct {
	URL string `yaml:"url"`

	// Token is sent as a bearer token on the websocket handshake.
	Token string `yaml:"token"`
}

// HistoryConfig selects the transcript store.
type HistoryConfig struct {
	Backend     HistoryBackend `yaml:"backend"`
	PostgresDSN string         `yaml:"postgres_dsn"`
	MaxEntries  int            `yaml:"max_entries"`
}

// ServerConfig holds the listen addresses of the relay server.
type ServerConfig struct {
	// ListenAddr serves the websocket relay.
	ListenAddr string `yaml:"listen_addr"`

	// ObserveAddr serves /metrics, /healthz and /readyz.
	ObserveAddr string `yaml:"observe_addr"`

	// AllowedOrigins are host patterns accepted for cross-origin handshakes.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SaveTranscriptsEnabled reports the effective save_transcripts setting.
func (t TranslationConfig) SaveTranscriptsEnabled() bool {
	return t.SaveTranscripts == nil || *t.SaveTranscripts
}

// AutoPlayEnabled reports the effective auto_play setting.
func (v VoicesConfig) AutoPlayEnabled() bool {
	return v.AutoPlay == nil || *v.AutoPlay
}

// Volume reports the effective output volume.
func (v VoicesConfig) Volume() float64 {
	if v.OutputVolume == nil {
		return 1
	}
	return *v.OutputVolume
}
