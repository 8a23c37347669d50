package config_test

import (
	"testing"
	"time"

	"github.com/MrWong99/polyglot/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(config.Default(), config.Default())
	if d.Changed() || d.RestartRequired {
		t.Errorf("identical configs produced diff %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(config.ConfigDiff) bool
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.LogLevel = config.LogDebug },
			check:  func(d config.ConfigDiff) bool { return d.LogLevelChanged && d.NewLogLevel == config.LogDebug },
		},
		{
			name:   "target language",
			mutate: func(c *config.Config) { c.Translation.TargetLanguage = "fr" },
			check:  func(d config.ConfigDiff) bool { return d.TranslationChanged && !d.VoicesChanged },
		},
		{
			name:   "glossary",
			mutate: func(c *config.Config) { c.Translation.Glossary = []string{"Grafana"} },
			check:  func(d config.ConfigDiff) bool { return d.TranslationChanged },
		},
		{
			name: "save transcripts",
			mutate: func(c *config.Config) {
				off := false
				c.Translation.SaveTranscripts = &off
			},
			check: func(d config.ConfigDiff) bool { return d.TranslationChanged },
		},
		{
			name:   "voice",
			mutate: func(c *config.Config) { c.Voices.Selected = "voice-9" },
			check:  func(d config.ConfigDiff) bool { return d.VoicesChanged && !d.TranslationChanged },
		},
		{
			name: "volume",
			mutate: func(c *config.Config) {
				v := 0.3
				c.Voices.OutputVolume = &v
			},
			check: func(d config.ConfigDiff) bool { return d.VoicesChanged },
		},
		{
			name:   "silence duration",
			mutate: func(c *config.Config) { c.VAD.SilenceDuration = 2 * time.Second },
			check:  func(d config.ConfigDiff) bool { return d.VADChanged && !d.RestartRequired },
		},
		{
			name:   "provider",
			mutate: func(c *config.Config) { c.Providers.STT.Name = "deepgram" },
			check:  func(d config.ConfigDiff) bool { return d.RestartRequired && !d.Changed() },
		},
		{
			name:   "audio device",
			mutate: func(c *config.Config) { c.Audio.Device = "USB" },
			check:  func(d config.ConfigDiff) bool { return d.RestartRequired },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, cur := config.Default(), config.Default()
			tt.mutate(cur)
			if d := config.Diff(old, cur); !tt.check(d) {
				t.Errorf("unexpected diff %+v", d)
			}
		})
	}
}

func TestDiff_ExplicitDefaultIsNotAChange(t *testing.T) {
	t.Parallel()
	old, cur := config.Default(), config.Default()
	on := true
	one := 1.0
	cur.Translation.SaveTranscripts = &on
	cur.Voices.AutoPlay = &on
	cur.Voices.OutputVolume = &one
	if d := config.Diff(old, cur); d.Changed() {
		t.Errorf("spelling out defaults should not be a change: %+v", d)
	}
}
