package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxstt/internal/audio"
	"github.com/fmueller/voxstt/internal/logging"
	"github.com/fmueller/voxstt/internal/metrics"
	"github.com/fmueller/voxstt/internal/platform"
	"github.com/fmueller/voxstt/internal/proc"
	"github.com/fmueller/voxstt/internal/stt"
	"github.com/fmueller/voxstt/internal/version"
	"github.com/fmueller/voxstt/internal/whisper"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const ffmpegPathEnv = "VOXSTT_FFMPEG_PATH"

type appState struct {
	verbose          bool
	jsonLogs         bool
	noProgress       bool
	whisperPath      string
	ffmpegPath       string
	model            string
	modelDir         string
	language         string
	workDir          string
	silenceGate      bool
	silenceDBFS      float64
	normalizeTimeout time.Duration
	engineTimeout    time.Duration

	logger *zap.Logger

	transcribeFn func(ctx context.Context, audioPath string) (stt.Result, error)
	statusFn     func() (whisper.Status, error)
	serveFn      func(ctx context.Context, opts serveOptions) error
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		ffmpegPath:       envOr(ffmpegPathEnv, audio.DefaultFFmpegPath),
		model:            whisper.DefaultModel,
		language:         whisper.AutoLanguage,
		silenceDBFS:      -65,
		normalizeTimeout: 2 * time.Minute,
		engineTimeout:    10 * time.Minute,
	}
	app.transcribeFn = app.transcribeAudio
	app.statusFn = app.engineStatus
	app.serveFn = app.runServe

	cmd := &cobra.Command{
		Use:           "voxstt",
		Short:         "Transcribe audio locally with ffmpeg and whisper.cpp",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts := logging.Options{Verbose: app.verbose, JSON: app.jsonLogs}
			if cmd.Name() == "serve" {
				opts.Service = "voxstt"
			}
			logger, err := logging.New(opts)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.language = stt.SanitizeLanguage(app.language)
			app.logger = logger
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindToolFlags(cmd, app)
	bindModelFlags(cmd, app)
	bindPipelineFlags(cmd, app)

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTranscribeCmd(app))
	cmd.AddCommand(newStatusCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindToolFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.whisperPath, "whisper-path", app.whisperPath, "Path to the whisper.cpp executable (default: $"+whisper.EnginePathEnv+", then next to voxstt, then PATH)")
	cmd.PersistentFlags().StringVar(&app.ffmpegPath, "ffmpeg-path", app.ffmpegPath, "Path to the ffmpeg executable (env "+ffmpegPathEnv+")")
}

func bindModelFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.model, "model", app.model, "Model name ("+strings.Join(whisper.ModelNames(), "|")+") or model file path")
	cmd.PersistentFlags().StringVar(&app.modelDir, "model-dir", app.modelDir, "Directory where models are stored")
	cmd.PersistentFlags().StringVar(&app.language, "language", app.language, "Language code (auto|en|de|...) for transcription")
}

func bindPipelineFlags(cmd *cobra.Command, app *appState) {
	cmd.PersistentFlags().StringVar(&app.workDir, "work-dir", app.workDir, "Directory for per-request temporary files (default: <tmp>/voxstt)")
	cmd.PersistentFlags().BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip the engine for near-silent audio")
	cmd.PersistentFlags().Float64Var(&app.silenceDBFS, "silence-threshold-dbfs", app.silenceDBFS, "Silence gate threshold in dBFS")
	cmd.PersistentFlags().DurationVar(&app.normalizeTimeout, "normalize-timeout", app.normalizeTimeout, "Upper bound for audio normalization; 0 disables")
	cmd.PersistentFlags().DurationVar(&app.engineTimeout, "engine-timeout", app.engineTimeout, "Upper bound for one engine run; 0 disables")
}

type components struct {
	engine   *whisper.Engine
	pipeline *stt.Pipeline
}

// buildComponents wires the pipeline from flags. A missing engine or model
// is not an error here; Engine.Status and Transcribe report it.
func (a *appState) buildComponents(m *metrics.Metrics) (components, error) {
	model, err := a.resolveModel()
	if err != nil {
		return components{}, err
	}

	runner := proc.NewExecRunner(a.log())
	engine := whisper.NewEngine(a.resolveEnginePath(), model.Path, runner, a.log())
	normalizer := audio.NewNormalizer(a.ffmpegPath, runner, a.log())

	pipeline := stt.New(normalizer, engine, whisper.NewExtractor(a.log()), stt.Options{
		WorkDir:              platform.ResolveWorkDir(a.workDir),
		NormalizeTimeout:     a.normalizeTimeout,
		EngineTimeout:        a.engineTimeout,
		SilenceGate:          a.silenceGate,
		SilenceThresholdDBFS: a.silenceDBFS,
	}, a.log(), m)

	return components{engine: engine, pipeline: pipeline}, nil
}

func (a *appState) resolveModel() (whisper.ResolvedModel, error) {
	modelDir, err := platform.ResolveModelDir(a.modelDir)
	if err != nil {
		return whisper.ResolvedModel{}, err
	}
	return whisper.ResolveModel(a.model, modelDir)
}

func (a *appState) resolveEnginePath() string {
	if p := strings.TrimSpace(a.whisperPath); p != "" {
		return p
	}

	self, err := os.Executable()
	if err != nil {
		a.log().Debug("could not resolve own executable", zap.Error(err))
	}
	path, err := whisper.ResolveEnginePath(self)
	if err != nil {
		a.log().Debug("whisper engine not found", zap.String("expected", path), zap.Error(err))
	}
	return path
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
