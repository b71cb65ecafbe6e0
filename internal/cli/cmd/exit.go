package cmd

import (
	"context"
	"errors"

	"usmconv/internal/model"
	"usmconv/internal/ui"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitCLIError         = 1
	ExitMissingDep       = 2
	ExitAcquisitionError = 3
	ExitTranscodeError   = 4
	ExitPackagingError   = 5
	ExitInputError       = 6
	ExitInterrupted      = 130
)

// kindCodes maps failure kinds to exit codes. Kinds not listed exit with
// ExitCLIError.
var kindCodes = map[model.Kind]int{
	model.KindInput:       ExitInputError,
	model.KindMedia:       ExitInputError,
	model.KindAcquisition: ExitAcquisitionError,
	model.KindTranscode:   ExitTranscodeError,
	model.KindPackaging:   ExitPackagingError,
}

// ExitError carries the exit code a failed command should end the process with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitFor maps a run error to the process exit code.
func exitFor(err error) *ExitError {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ui.ErrForcedExit) {
		return &ExitError{Code: ExitInterrupted, Err: err}
	}
	code, ok := kindCodes[model.KindOf(err)]
	if !ok {
		code = ExitCLIError
	}
	return &ExitError{Code: code, Err: err}
}
