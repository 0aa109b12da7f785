package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fmueller/voxstt/internal/whisper"
	"github.com/spf13/cobra"
)

var errNotReady = errors.New("transcription engine is not ready")

func newStatusCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the whisper engine and model are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statusFn := app.statusFn
			if statusFn == nil {
				statusFn = app.engineStatus
			}

			status, err := statusFn()
			if err != nil {
				return err
			}

			printStatus(cmd.OutOrStdout(), status)
			if !status.Ready() {
				return errNotReady
			}
			return nil
		},
	}
}

func (a *appState) engineStatus() (whisper.Status, error) {
	comps, err := a.buildComponents(nil)
	if err != nil {
		return whisper.Status{}, err
	}
	return comps.engine.Status(), nil
}

func printStatus(w io.Writer, status whisper.Status) {
	fmt.Fprintf(w, "engine: %s (%s)\n", presence(status.EngineInstalled, "installed"), status.EnginePath)
	fmt.Fprintf(w, "model:  %s (%s)\n", presence(status.ModelPresent, "present"), status.ModelPath)
	if !status.EngineInstalled {
		fmt.Fprintf(w, "hint: build whisper.cpp and pass --whisper-path or set %s\n", whisper.EnginePathEnv)
	}
	if !status.ModelPresent {
		fmt.Fprintln(w, "hint: fetch a ggml model with whisper.cpp's models/download-ggml-model.sh and pass --model or --model-dir")
	}
}

func presence(ok bool, word string) string {
	if ok {
		return word
	}
	return "missing"
}
