package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fmueller/voxstt/internal/stt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTranscribeCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file",
		Long:  "Transcribe an audio file in any format ffmpeg can read. The input file is left untouched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcribeFn := app.transcribeFn
			if transcribeFn == nil {
				transcribeFn = app.transcribeAudio
			}

			res, err := transcribeFn(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			if isBlankTranscript(res.Text) {
				app.log().Warn(noSpeechHint(), zap.String("source", string(res.Source)))
			}
			return nil
		},
	}
}

func (a *appState) transcribeAudio(ctx context.Context, audioPath string) (stt.Result, error) {
	audioPath = filepath.Clean(audioPath)
	if _, err := os.Stat(audioPath); err != nil {
		return stt.Result{}, fmt.Errorf("audio file not found: %w", err)
	}

	comps, err := a.buildComponents(nil)
	if err != nil {
		return stt.Result{}, err
	}

	a.log().Info("transcribing...", zap.String("audio", audioPath), zap.String("model", comps.engine.ModelPath), zap.String("language", a.language))
	stopSpinner := startSpinner(a.progressEnabled(), "Transcribing")
	started := time.Now()

	res, err := comps.pipeline.Transcribe(ctx, stt.Request{
		SourcePath: audioPath,
		Language:   a.language,
	})
	stopSpinner()
	if err != nil {
		return stt.Result{}, err
	}
	a.log().Info("transcription finished", zap.Duration("elapsed", time.Since(started)), zap.String("source", string(res.Source)))

	return res, nil
}
