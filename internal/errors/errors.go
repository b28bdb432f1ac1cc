// Package errors defines the error taxonomy shared by the reconstruction stages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies a failure.
type Code string

const (
	// Input source missing or holding no candidate items.
	CodeNotFound Code = "NOT_FOUND"
	// A single item could not be decoded. Recoverable.
	CodeDecodeFailure Code = "DECODE_FAILURE"
	// Nothing readable remained after skipping failures.
	CodeEmptyInput Code = "EMPTY_INPUT"
	// The binary volume has no foreground voxel.
	CodeEmptyVolume Code = "EMPTY_VOLUME"
	// Iso-surfacing produced no faces.
	CodeDegenerateSurface Code = "DEGENERATE_SURFACE"
	// Arguments are inconsistent (shape mismatch, bad spacing).
	CodeInvalidInput Code = "INVALID_INPUT"
)

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound          = &ReconError{Code: CodeNotFound}
	ErrDecodeFailure     = &ReconError{Code: CodeDecodeFailure}
	ErrEmptyInput        = &ReconError{Code: CodeEmptyInput}
	ErrEmptyVolume       = &ReconError{Code: CodeEmptyVolume}
	ErrDegenerateSurface = &ReconError{Code: CodeDegenerateSurface}
	ErrInvalidInput      = &ReconError{Code: CodeInvalidInput}
)

// ReconError is a classified failure raised by one pipeline stage.
type ReconError struct {
	Code    Code
	Stage   string
	Message string
	Cause   error
}

func (e *ReconError) Error() string {
	msg := string(e.Code)
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *ReconError) Unwrap() error {
	return e.Cause
}

// Is matches any ReconError carrying the same Code.
func (e *ReconError) Is(target error) bool {
	t, ok := target.(*ReconError)
	return ok && t.Code == e.Code
}

// New builds a ReconError for a stage.
func New(code Code, stage, format string, args ...interface{}) *ReconError {
	return &ReconError{
		Code:    code,
		Stage:   stage,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap builds a ReconError that keeps cause in its chain.
func Wrap(code Code, stage string, cause error, format string, args ...interface{}) *ReconError {
	e := New(code, stage, format, args...)
	e.Cause = cause
	return e
}

// CodeOf returns the Code of the first ReconError in err's chain, or "".
func CodeOf(err error) Code {
	var re *ReconError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}
