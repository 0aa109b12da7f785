package stt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fmueller/voxstt/internal/audio"
	"github.com/fmueller/voxstt/internal/janitor"
	"github.com/fmueller/voxstt/internal/metrics"
	"github.com/fmueller/voxstt/internal/whisper"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrSourceNotFound = errors.New("source audio not found")
	ErrInvalidID      = errors.New("invalid request id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

type Normalizer interface {
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

type Engine interface {
	Transcribe(ctx context.Context, audioPath, language string) (whisper.Output, error)
}

type Extractor interface {
	Extract(audioPath string, out whisper.Output) whisper.Transcript
}

// Request is one transcription call. When DiscardSource is set the source
// file belongs to the pipeline and is removed with the other temporaries.
type Request struct {
	ID            string
	SourcePath    string
	Language      string
	DiscardSource bool
}

type Result struct {
	ID       string
	Text     string
	Language string
	Source   whisper.TranscriptSource
}

type Options struct {
	WorkDir              string
	NormalizeTimeout     time.Duration
	EngineTimeout        time.Duration
	SilenceGate          bool
	SilenceThresholdDBFS float64
}

type Pipeline struct {
	normalizer Normalizer
	engine     Engine
	extractor  Extractor
	opts       Options
	logger     *zap.Logger
	metrics    *metrics.Metrics
	newID      func() string
}

func New(normalizer Normalizer, engine Engine, extractor Extractor, opts Options, logger *zap.Logger, m *metrics.Metrics) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(opts.WorkDir) == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "voxstt")
	}
	return &Pipeline{
		normalizer: normalizer,
		engine:     engine,
		extractor:  extractor,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		newID:      uuid.NewString,
	}
}

func (p *Pipeline) WorkDir() string {
	return p.opts.WorkDir
}

// NewID returns a fresh request identifier.
func (p *Pipeline) NewID() string {
	return p.newID()
}

// WorkPaths returns the normalized audio and transcript artifact paths for
// request id. Distinct ids never share a path.
func WorkPaths(workDir, id string) (normalized, artifact string) {
	normalized = filepath.Join(workDir, "stt-"+id+".wav")
	return normalized, whisper.ArtifactPath(normalized)
}

// Transcribe runs normalize, transcribe and extract in order. Every
// temporary file is removed before it returns, whatever the outcome.
func (p *Pipeline) Transcribe(ctx context.Context, req Request) (res Result, err error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = p.newID()
	}
	lang := SanitizeLanguage(req.Language)
	logger := p.logger.With(zap.String("request_id", id))
	started := time.Now()

	jan := janitor.New(logger)
	if req.DiscardSource {
		jan.Track(janitor.RoleUploaded, req.SourcePath)
	}
	defer func() {
		if cleanupErr := jan.ReleaseAll(); cleanupErr != nil {
			p.metrics.CleanupFailed(len(multierr.Errors(cleanupErr)))
		}
		p.metrics.RecordOutcome(Outcome(err))
		if err != nil {
			logger.Warn("transcription failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		}
	}()

	if !idPattern.MatchString(id) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if _, statErr := os.Stat(req.SourcePath); statErr != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSourceNotFound, statErr)
	}
	if mkErr := os.MkdirAll(p.opts.WorkDir, 0o755); mkErr != nil {
		return Result{}, fmt.Errorf("create work directory %s: %w", p.opts.WorkDir, mkErr)
	}

	normalized, artifact := WorkPaths(p.opts.WorkDir, id)
	jan.Track(janitor.RoleNormalized, normalized)
	jan.Track(janitor.RoleArtifact, artifact)

	logger.Info("transcribing...", zap.String("source", req.SourcePath), zap.String("language", lang))

	if err := p.normalize(ctx, req.SourcePath, normalized); err != nil {
		return Result{}, err
	}

	if p.opts.SilenceGate {
		if silent := p.silent(logger, normalized); silent {
			p.metrics.RecordSource(string(whisper.SourceSilence))
			return Result{ID: id, Language: lang, Source: whisper.SourceSilence}, nil
		}
	}

	stageStarted := time.Now()
	engineCtx, cancel := withTimeout(ctx, p.opts.EngineTimeout)
	out, err := p.engine.Transcribe(engineCtx, normalized, lang)
	cancel()
	p.metrics.ObserveStage("transcribe", time.Since(stageStarted))
	if err != nil {
		return Result{}, err
	}

	stageStarted = time.Now()
	transcript := p.extractor.Extract(normalized, out)
	p.metrics.ObserveStage("extract", time.Since(stageStarted))
	p.metrics.RecordSource(string(transcript.Source))

	logger.Info("transcription finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("source", string(transcript.Source)),
		zap.Int("chars", len(transcript.Text)),
	)

	return Result{ID: id, Text: transcript.Text, Language: lang, Source: transcript.Source}, nil
}

func (p *Pipeline) normalize(ctx context.Context, source, normalized string) error {
	started := time.Now()
	normCtx, cancel := withTimeout(ctx, p.opts.NormalizeTimeout)
	defer cancel()

	err := p.normalizer.Normalize(normCtx, source, normalized)
	p.metrics.ObserveStage("normalize", time.Since(started))
	if err != nil {
		return err
	}

	// The engine must never see a path that normalization did not produce.
	if _, statErr := os.Stat(normalized); statErr != nil {
		return &audio.NormalizationError{Err: fmt.Errorf("normalized output missing: %w", statErr)}
	}
	return nil
}

func (p *Pipeline) silent(logger *zap.Logger, normalized string) bool {
	silent, m, err := audio.IsSilentWAV(normalized, p.opts.SilenceThresholdDBFS)
	if err != nil {
		logger.Warn("silence gate analysis failed; continuing transcription", zap.Error(err))
		return false
	}
	if silent {
		logger.Info("audio considered silent; skipping transcription",
			zap.Float64("rms_dbfs", m.RMSdBFS),
			zap.Float64("peak_dbfs", m.PeakdBFS),
			zap.Float64("threshold_dbfs", p.opts.SilenceThresholdDBFS),
		)
	}
	return silent
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// SanitizeLanguage normalizes a language hint; blank means auto-detect.
func SanitizeLanguage(input string) string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return whisper.AutoLanguage
	}
	return trimmed
}
