package session

import (
	"strings"
	"time"

	"github.com/MrWong99/polyglot/internal/detector"
	"github.com/MrWong99/polyglot/internal/pipeline"
)

// Settings are the user preferences applied to every utterance.
type Settings struct {
	SourceLanguage string
	TargetLanguage string
	AutoDetect     bool

	// SaveTranscripts adds every result to the history store.
	SaveTranscripts bool

	// AutoPlay plays synthesized translations as they arrive.
	AutoPlay bool

	// OutputVolume is the playback gain in [0, 1].
	OutputVolume float64

	Voice    pipeline.VoiceSelection
	Glossary []string

	SilenceThreshold float64
	SilenceDuration  time.Duration
}

// DefaultSettings translates Spanish to English with transcripts saved and
// translations played back.
func DefaultSettings() Settings {
	return Settings{
		SourceLanguage:   "es",
		TargetLanguage:   "en",
		SaveTranscripts:  true,
		AutoPlay:         true,
		OutputVolume:     1,
		SilenceThreshold: detector.DefaultSilenceThreshold,
		SilenceDuration:  detector.DefaultSilenceDuration,
	}
}

func (s Settings) request() pipeline.Request {
	return pipeline.Request{
		SourceLanguage: strings.ToLower(strings.TrimSpace(s.SourceLanguage)),
		TargetLanguage: strings.ToLower(strings.TrimSpace(s.TargetLanguage)),
		AutoDetect:     s.AutoDetect,
		Voice:          s.Voice,
		Glossary:       s.Glossary,
	}
}
