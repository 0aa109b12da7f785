package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/fmueller/voxstt/internal/audio"
	"github.com/fmueller/voxstt/internal/stt"
)

// Process exit codes. Scripts can tell a broken installation apart from
// audio the engine could not handle.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitSetup    = 3
	ExitBadAudio = 4

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

var usagePatterns = []string{
	"unknown command",
	"unknown flag",
	"unknown shorthand flag",
	"accepts ",
	"requires at least",
	"requires at most",
	"requires between",
	"required flag",
	"missing required",
	"invalid argument",
}

// IsUsageError reports whether err came from argument or flag parsing.
func IsUsageError(err error) bool {
	if err == nil {
		return false
	}

	message := strings.ToLower(strings.TrimSpace(err.Error()))
	for _, pattern := range usagePatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, context.DeadlineExceeded):
		return ExitFailure
	case errors.Is(err, errNotReady), stt.IsSetupError(err):
		return ExitSetup
	case errors.Is(err, audio.ErrNormalizationFailed), errors.Is(err, stt.ErrSourceNotFound):
		return ExitBadAudio
	case IsUsageError(err):
		return ExitUsage
	default:
		return ExitFailure
	}
}
