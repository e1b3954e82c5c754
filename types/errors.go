package types

import (
	"errors"
	"fmt"
)

// InternalError reports a broken invariant: a defect in the calling code or an
// unsupported protocol version. It is never retried.
type InternalError struct {
	// Op is the operation that detected the violation.
	Op  string
	Msg string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error in %s: %s", e.Op, e.Msg)
}

// NewInternalError creates an InternalError.
func NewInternalError(op, format string, args ...any) *InternalError {
	return &InternalError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsInternalError returns true if err is or wraps an InternalError.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// LaunchError reports that the worker could not be started or connected.
// Callers treat it as build-aborting.
type LaunchError struct {
	// ExePath is the worker executable the launcher expected to run.
	ExePath string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("could not connect to resolution node %q: %v", e.ExePath, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError returns true if err is or wraps a LaunchError.
func IsLaunchError(err error) bool {
	var le *LaunchError
	return errors.As(err, &le)
}
