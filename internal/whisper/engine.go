package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fmueller/voxstt/internal/proc"
	"go.uber.org/zap"
)

const (
	// AutoLanguage lets the engine detect the spoken language.
	AutoLanguage = "auto"
	// DefaultLanguage is the engine's built-in language.
	DefaultLanguage = "en"
)

var (
	ErrEngineNotInstalled    = errors.New("whisper engine not installed")
	ErrModelNotFound         = errors.New("whisper model not found")
	ErrEngineStartFailed     = errors.New("whisper engine could not be started")
	ErrEngineExecutionFailed = errors.New("whisper transcription failed")
)

// ExecutionError is returned when the engine ran but did not exit cleanly.
type ExecutionError struct {
	Executable string
	ExitCode   int
	Stderr     string
	Err        error
}

func (e *ExecutionError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	switch {
	case isMissingSharedLibraryError(stderr):
		return fmt.Sprintf("%s: engine at %s is missing required shared libraries (%s); rebuild whisper-cli with BUILD_SHARED_LIBS=OFF or fix the library path", ErrEngineExecutionFailed, e.Executable, stderr)
	case isIllegalInstructionError(stderr) || (e.Err != nil && isIllegalInstructionError(e.Err.Error())):
		return fmt.Sprintf("%s: engine crashed with an illegal CPU instruction; point VOXSTT_WHISPER_PATH at a whisper-cli built for this CPU", ErrEngineExecutionFailed)
	case stderr != "":
		return fmt.Sprintf("%s: %s", ErrEngineExecutionFailed, stderr)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrEngineExecutionFailed, e.Err)
	default:
		return fmt.Sprintf("%s: Unknown error", ErrEngineExecutionFailed)
	}
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrEngineExecutionFailed
}

// Output is what one successful engine run left on its console streams.
type Output struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Status is the environment precondition view consumed by health checks.
type Status struct {
	EngineInstalled bool
	ModelPresent    bool
	EnginePath      string
	ModelPath       string
}

// Ready reports whether a transcription could be attempted.
func (s Status) Ready() bool {
	return s.EngineInstalled && s.ModelPresent
}

type Engine struct {
	Executable      string
	ModelPath       string
	DefaultLanguage string
	Runner          proc.Runner
	Logger          *zap.Logger
}

func NewEngine(executable, modelPath string, runner proc.Runner, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = proc.NewExecRunner(logger)
	}
	return &Engine{
		Executable:      executable,
		ModelPath:       modelPath,
		DefaultLanguage: DefaultLanguage,
		Runner:          runner,
		Logger:          logger,
	}
}

func (e *Engine) Status() Status {
	return Status{
		EngineInstalled: ensureExecutable(e.Executable) == nil,
		ModelPresent:    ensureRegularFile(e.ModelPath) == nil,
		EnginePath:      e.Executable,
		ModelPath:       e.ModelPath,
	}
}

// Args builds the engine command line for audioPath. The language flag is
// left out for "auto" and for the engine default.
func (e *Engine) Args(audioPath, language string) []string {
	args := []string{
		"-m", e.ModelPath,
		"-f", audioPath,
		"-otxt",
		"-of", OutputBase(audioPath),
	}

	lang := strings.ToLower(strings.TrimSpace(language))
	defaultLang := e.DefaultLanguage
	if defaultLang == "" {
		defaultLang = DefaultLanguage
	}
	if lang != "" && lang != AutoLanguage && lang != defaultLang {
		args = append(args, "-l", lang)
	}
	return args
}

// Transcribe runs the engine against a normalized WAV. Preconditions are
// checked before anything is spawned. A zero exit is a success even when
// stdout is empty; the text artifact may still hold the transcript.
func (e *Engine) Transcribe(ctx context.Context, audioPath, language string) (Output, error) {
	if err := ensureExecutable(e.Executable); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrEngineNotInstalled, err)
	}
	if err := ensureRegularFile(e.ModelPath); err != nil {
		return Output{}, fmt.Errorf("%w: %v", ErrModelNotFound, err)
	}

	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	args := e.Args(audioPath, language)
	logger.Debug("running whisper engine", zap.String("engine", e.Executable), zap.Strings("args", args))

	result, err := e.Runner.Run(ctx, e.Executable, args...)
	out := Output{Args: args, Stdout: result.Stdout, Stderr: result.Stderr, ExitCode: result.ExitCode}
	if err != nil {
		// A done context also fails Start; that is an interruption, not a
		// broken installation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("whisper engine interrupted: %w", ctxErr)
		}
		var startErr *proc.StartError
		if errors.As(err, &startErr) {
			return out, fmt.Errorf("%w: %v", ErrEngineStartFailed, startErr.Err)
		}
		return out, &ExecutionError{Executable: e.Executable, ExitCode: result.ExitCode, Stderr: result.Stderr, Err: err}
	}
	if result.ExitCode != 0 {
		return out, &ExecutionError{Executable: e.Executable, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	logger.Debug("whisper engine finished", zap.Duration("elapsed", result.Duration), zap.Int("stdout_bytes", len(result.Stdout)))
	return out, nil
}

// OutputBase is the path prefix handed to the engine for its artifacts.
func OutputBase(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
}

// ArtifactPath is where the engine writes the plain-text transcript for
// audioPath.
func ArtifactPath(audioPath string) string {
	return OutputBase(audioPath) + ".txt"
}

func ensureRegularFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
