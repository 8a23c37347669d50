package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/internal/config"
	"github.com/MrWong99/polyglot/internal/recorder"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/audio/portaudio"
	"github.com/MrWong99/polyglot/pkg/provider/tts"
)

// errNoTTS is returned by the voices commands without a tts provider.
var errNoTTS = errors.New("no tts provider configured (providers.tts)")

func newVoicesCmd(g *globalFlags) *cobra.Command {
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "Manage synthesis voices",
	}

	voicesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the voices of the configured tts provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, synth, closeFn, err := g.loadTTS(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			voices, err := synth.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.Category)
			}
			return tw.Flush()
		},
	})

	var (
		name    string
		seconds int
	)
	clone := &cobra.Command{
		Use:   "clone",
		Short: "Record a voice sample and clone it",
		Long: `Records the microphone for --seconds (at least 60) and uploads the
sample to the tts provider. Add the printed voice id to voices.saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := time.Duration(seconds) * time.Second
			if d < recorder.VoiceCloneMinDuration {
				return fmt.Errorf("--seconds must be at least %d", int(recorder.VoiceCloneMinDuration.Seconds()))
			}
			cfg, synth, closeFn, err := g.loadTTS(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			capture := audio.NewCapture(portaudio.NewDevice(cfg.Audio.Device),
				audio.WithFormat(audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels}),
				audio.WithFrameSize(cfg.Audio.FrameSize),
			)
			if err := capture.Start(ctx); err != nil {
				return err
			}
			defer capture.Stop()

			rec := recorder.New(
				recorder.WithMinDuration(recorder.VoiceCloneMinDuration),
				recorder.WithMaxDuration(max(d, recorder.DefaultMaxDuration)),
				recorder.WithShortPolicy(recorder.ShortError),
			)
			fmt.Fprintf(cmd.OutOrStdout(), "Recording %s, read something aloud...\n", d)
			clip, err := rec.RecordFor(ctx, capture, d)
			if err != nil {
				return err
			}

			profile, err := synth.CloneVoice(ctx, name, [][]byte{clip.Bytes()})
			if errors.Is(err, tts.ErrCloneUnsupported) {
				return errors.New("the configured tts provider cannot clone voices")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cloned voice %q: %s\n", profile.Name, profile.ID)
			return nil
		},
	}
	clone.Flags().StringVar(&name, "name", "", "name of the new voice")
	clone.Flags().IntVar(&seconds, "seconds", int(recorder.VoiceCloneMinDuration.Seconds()), "sample length in seconds")
	_ = clone.MarkFlagRequired("name")
	voicesCmd.AddCommand(clone)

	return voicesCmd
}

// loadTTS loads the config and builds its tts provider.
func (g *globalFlags) loadTTS(cmd *cobra.Command) (*config.Config, tts.Provider, func(), error) {
	cfg, _, err := g.loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ps, err := buildProviders(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() { _ = ps.Close() }
	if ps.TTS == nil {
		closeFn()
		return nil, nil, nil, errNoTTS
	}
	return cfg, ps.TTS, closeFn, nil
}
