package cli

import (
	"errors"

	"github.com/backy2/backy2/internal/engine"
)

// Process exit codes, exactly as spec.md §6.
const (
	ExitSuccess         = 0
	ExitUnexpectedError = 1
	ExitPipelineBroken  = 3
	ExitPrepareError    = 4
	ExitHintMismatch    = 5
	ExitLockContention  = 99
)

// ExitCode derives the process exit code for an error returned by an
// Engine operation.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, engine.ErrLocked):
		return ExitLockContention
	case errors.Is(err, engine.ErrHintMismatch):
		return ExitHintMismatch
	case errors.Is(err, engine.ErrPipelineBroken):
		return ExitPipelineBroken
	case errors.Is(err, engine.ErrInvalidBase), errors.Is(err, engine.ErrInvalidHints):
		return ExitPrepareError
	default:
		return ExitUnexpectedError
	}
}
