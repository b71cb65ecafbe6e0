package model

import (
	"errors"
	"fmt"
)

// Kind classifies run failures.
type Kind string

const (
	KindInput       Kind = "input"
	KindMedia       Kind = "media"
	KindAcquisition Kind = "acquisition"
	KindTranscode   Kind = "transcode"
	KindPackaging   Kind = "packaging"
	KindInternal    Kind = "internal"
	KindBusy        Kind = "busy"
)

var (
	ErrEmptyInput  = errors.New("input is empty")
	ErrEmptyOutput = errors.New("output is empty")
	ErrInvalidKey  = errors.New("invalid key: want 0x followed by 16 alphanumeric characters")
)

// Error carries the failure kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err. An err that is already an *Error keeps its kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}

// UserMessage converges every kind except input, media and network failures
// to the same generic text.
func UserMessage(err error) string {
	if err == nil {
		return "Convert completed."
	}
	switch KindOf(err) {
	case KindInput:
		return "Input or output is empty, or invalid key."
	case KindAcquisition:
		return "Invalid link or network error."
	case KindMedia:
		return "Invalid video file."
	case KindBusy:
		return "A conversion is already running."
	default:
		return "An unexpected error has occurred."
	}
}
