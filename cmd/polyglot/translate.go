package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/internal/app"
	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/internal/session"
	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/audio/portaudio"
)

func newTranslateCmd(g *globalFlags) *cobra.Command {
	var (
		file string
		play bool
	)
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a WAV recording",
		Long: `Runs one WAV file through transcription, translation and, when a
voice is configured, synthesis.

Example:
  polyglot translate --file question.wav --play`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			clip, err := audio.ClipFromWAV(data, time.Now())
			if err != nil {
				return err
			}

			ps, err := buildProviders(cfg)
			if err != nil {
				return err
			}
			defer ps.Close()

			s := app.SessionSettings(cfg)
			res, err := app.NewPipeline(ps, nil).Process(cmd.Context(), clip, pipeline.Request{
				SourceLanguage: s.SourceLanguage,
				TargetLanguage: s.TargetLanguage,
				AutoDetect:     s.AutoDetect,
				Voice:          s.Voice,
				Glossary:       s.Glossary,
				OnProgress: func(st pipeline.Status) {
					if st.Processing {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %3d%% %s\n", st.Progress, st.Label)
					}
				},
			})
			if err != nil {
				var se *pipeline.StageError
				if errors.As(err, &se) {
					return errors.New(session.UserMessage(err))
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[%s] %s\n[%s] %s\n", res.FromLanguage, res.OriginalText, res.ToLanguage, res.TranslatedText)
			if play && res.HasAudio() {
				player := portaudio.NewPlayer()
				player.SetVolume(s.OutputVolume)
				return player.Play(cmd.Context(), res.Audio)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "WAV file to translate")
	cmd.Flags().BoolVar(&play, "play", false, "play the synthesized translation")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
