package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fmueller/voxstt/internal/proc"
	"go.uber.org/zap"
)

const (
	TargetSampleRate    = 16000
	TargetChannels      = 1
	TargetBitsPerSample = 16
	targetCodec         = "pcm_s16le"

	DefaultFFmpegPath = "ffmpeg"
)

var ErrNormalizationFailed = errors.New("audio normalization failed")

// NormalizationError carries the transcoder outcome. ExitCode is -1 when
// the process never started or never finished.
type NormalizationError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *NormalizationError) Error() string {
	msg := ErrNormalizationFailed.Error()
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("%s: ffmpeg exited with code %d", msg, e.ExitCode)
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += " (" + stderr + ")"
	}
	return msg
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

func (e *NormalizationError) Is(target error) bool {
	return target == ErrNormalizationFailed
}

// Normalizer transcodes arbitrary input audio into 16 kHz mono PCM16 WAV.
type Normalizer struct {
	FFmpeg string
	Runner proc.Runner
	Logger *zap.Logger
}

func NewNormalizer(ffmpegPath string, runner proc.Runner, logger *zap.Logger) *Normalizer {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = DefaultFFmpegPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = proc.NewExecRunner(logger)
	}
	return &Normalizer{FFmpeg: ffmpegPath, Runner: runner, Logger: logger}
}

// Args returns the transcoder arguments for one conversion.
func Args(inputPath, outputPath string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-y",
		"-i", inputPath,
		"-ar", strconv.Itoa(TargetSampleRate),
		"-ac", strconv.Itoa(TargetChannels),
		"-c:a", targetCodec,
		outputPath,
	}
}

// Normalize writes outputPath and blocks until the transcoder has exited.
// The input file is left untouched.
func (n *Normalizer) Normalize(ctx context.Context, inputPath, outputPath string) error {
	if strings.TrimSpace(inputPath) == "" || strings.TrimSpace(outputPath) == "" {
		return &NormalizationError{ExitCode: -1, Err: errors.New("input and output paths are required")}
	}

	logger := n.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	result, err := n.Runner.Run(ctx, n.FFmpeg, Args(inputPath, outputPath)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("audio normalization interrupted: %w", ctxErr)
		}
		var exitErr *proc.ExitError
		code := -1
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode
		}
		logger.Warn("ffmpeg failed", zap.String("input", inputPath), zap.Int("exit_code", code), zap.Error(err))
		return &NormalizationError{ExitCode: code, Stderr: result.Stderr, Err: err}
	}
	if result.ExitCode != 0 {
		return &NormalizationError{ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	if err := verifyNormalized(outputPath); err != nil {
		return &NormalizationError{Stderr: result.Stderr, Err: err}
	}

	logger.Debug("audio normalized", zap.String("input", inputPath), zap.String("output", outputPath), zap.Duration("elapsed", result.Duration))
	return nil
}

func verifyNormalized(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("normalized output missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("normalized output %s is empty", path)
	}

	format, err := InspectWAV(path)
	if err != nil {
		return fmt.Errorf("inspect normalized output: %w", err)
	}
	if !format.IsPCM16Mono16k() {
		return fmt.Errorf("normalized output is %d Hz, %d channel(s), %d-bit; want %d Hz mono %d-bit PCM",
			format.SampleRate, format.Channels, format.BitsPerSample, TargetSampleRate, TargetBitsPerSample)
	}
	return nil
}
