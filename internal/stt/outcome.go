package stt

import (
	"context"
	"errors"

	"github.com/fmueller/voxstt/internal/audio"
	"github.com/fmueller/voxstt/internal/whisper"
)

const (
	OutcomeSuccess              = "success"
	OutcomeSourceNotFound       = "source_not_found"
	OutcomeInvalidRequest       = "invalid_request"
	OutcomeNormalizationFailed  = "normalization_failed"
	OutcomeEngineNotInstalled   = "engine_not_installed"
	OutcomeModelNotFound        = "model_not_found"
	OutcomeEngineStartFailed    = "engine_start_failed"
	OutcomeEngineExecutionError = "engine_execution_failed"
	OutcomeTimeout              = "timeout"
	OutcomeCanceled             = "canceled"
	OutcomeError                = "error"
)

// Outcome classifies a pipeline error for metrics and transport mapping.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, ErrSourceNotFound):
		return OutcomeSourceNotFound
	case errors.Is(err, ErrInvalidID):
		return OutcomeInvalidRequest
	case errors.Is(err, audio.ErrNormalizationFailed):
		return OutcomeNormalizationFailed
	case errors.Is(err, whisper.ErrEngineNotInstalled):
		return OutcomeEngineNotInstalled
	case errors.Is(err, whisper.ErrModelNotFound):
		return OutcomeModelNotFound
	case errors.Is(err, whisper.ErrEngineStartFailed):
		return OutcomeEngineStartFailed
	case errors.Is(err, whisper.ErrEngineExecutionFailed):
		return OutcomeEngineExecutionError
	default:
		return OutcomeError
	}
}

// Interrupted reports whether the request ended because its context was
// canceled or ran past its deadline.
func Interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsSetupError reports whether err points at the local installation rather
// than at the submitted audio.
func IsSetupError(err error) bool {
	if Interrupted(err) {
		return false
	}
	return errors.Is(err, whisper.ErrEngineNotInstalled) ||
		errors.Is(err, whisper.ErrModelNotFound) ||
		errors.Is(err, whisper.ErrEngineStartFailed)
}
