package video

import (
	"github.com/pkg/errors"
)

var (
	ErrAlreadyStarted = errors.New("writer already started")
	ErrNotStarted     = errors.New("writer not started")
	// ErrFinished is returned for frames submitted after end of stream.
	ErrFinished = errors.New("writer finished")

	// ErrUnsupportedStride means rows carry padding. Packed rows are the only
	// supported layout and every later frame shares the geometry, so it is
	// fatal.
	ErrUnsupportedStride = errors.New("unsupported line stride")
	// ErrUnexpectedFormat means the source delivered a different FourCC than
	// the one the run was configured for.
	ErrUnexpectedFormat = errors.New("unexpected video format")
)

// FatalError ends a pipeline run. Everything else returned by the pipeline is
// a per-frame condition the caller may log and continue past.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err, or anything it wraps, is a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
