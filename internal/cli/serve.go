package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fmueller/voxstt/internal/metrics"
	"github.com/fmueller/voxstt/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultPort = "3004"

type serveOptions struct {
	addr           string
	maxConcurrent  int
	maxUploadBytes int64
}

func newServeCmd(app *appState) *cobra.Command {
	opts := serveOptions{
		addr:           defaultAddr(os.Getenv),
		maxUploadBytes: server.DefaultMaxUploadBytes,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			serveFn := app.serveFn
			if serveFn == nil {
				serveFn = app.runServe
			}
			return serveFn(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", opts.addr, "Listen address (default from $PORT)")
	cmd.Flags().IntVar(&opts.maxConcurrent, "max-concurrent", opts.maxConcurrent, "Concurrent engine runs; 0 means one per CPU")
	cmd.Flags().Int64Var(&opts.maxUploadBytes, "max-upload-bytes", opts.maxUploadBytes, "Largest accepted upload in bytes")
	return cmd
}

func (a *appState) runServe(ctx context.Context, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	comps, err := a.buildComponents(m)
	if err != nil {
		return err
	}

	if status := comps.engine.Status(); !status.Ready() {
		a.log().Warn("transcription engine not ready; requests will fail until setup is complete",
			zap.Bool("engine_installed", status.EngineInstalled),
			zap.String("engine_path", status.EnginePath),
			zap.Bool("model_present", status.ModelPresent),
			zap.String("model_path", status.ModelPath),
		)
	}

	srv := server.New(comps.pipeline, comps.engine, server.Config{
		MaxUploadBytes: opts.maxUploadBytes,
		MaxConcurrent:  opts.maxConcurrent,
	}, a.log(), m, prometheus.DefaultGatherer)

	if err := srv.Run(ctx, opts.addr); err != nil {
		return fmt.Errorf("transcription service: %w", err)
	}
	return nil
}

func defaultAddr(getenv func(string) string) string {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		return ":" + port
	}
	return ":" + defaultPort
}
