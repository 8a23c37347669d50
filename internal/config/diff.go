package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields the running session can apply live are reported individually;
// everything else is summarised by RestartRequired.
type ConfigDiff struct {
	TranslationChanged bool // languages, auto-detect, save_transcripts or glossary
	VoicesChanged      bool // voice selection, auto_play or output_volume
	VADChanged         bool // silence threshold or duration
	LogLevelChanged    bool
	NewLogLevel        LogLevel

	// RestartRequired is true when a setting outside the hot-reloadable set
	// changed (providers, audio device, relay, history, server).
	RestartRequired bool
}

// Changed reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Changed() bool {
	return d.TranslationChanged || d.VoicesChanged || d.VADChanged || d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	ot, nt := old.Translation, new.Translation
	if ot.SourceLanguage != nt.SourceLanguage ||
		ot.TargetLanguage != nt.TargetLanguage ||
		ot.AutoDetect != nt.AutoDetect ||
		ot.SaveTranscriptsEnabled() != nt.SaveTranscriptsEnabled() ||
		!slices.Equal(ot.Glossary, nt.Glossary) {
		d.TranslationChanged = true
	}

	ov, nv := old.Voices, new.Voices
	if ov.Selected != nv.Selected ||
		!slices.Equal(ov.Fallback, nv.Fallback) ||
		!slices.Equal(ov.Saved, nv.Saved) ||
		ov.AutoPlayEnabled() != nv.AutoPlayEnabled() ||
		ov.Volume() != nv.Volume() {
		d.VoicesChanged = true
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
	}

	if old.Audio != new.Audio ||
		old.Recording != new.Recording ||
		old.Relay != new.Relay ||
		old.History != new.History ||
		!reflect.DeepEqual(old.Server, new.Server) ||
		!reflect.DeepEqual(old.Providers, new.Providers) ||
		!reflect.DeepEqual(old.Fallbacks, new.Fallbacks) {
		d.RestartRequired = true
	}

	return d
}
