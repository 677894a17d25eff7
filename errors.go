package vessel

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrorCode is the API error identifier. Every fallible runtime operation
// reports exactly one of these codes so that callers can dispatch on the
// failure class without parsing message text.
type ErrorCode int

const (
	// InvalidSpec means the submitted container specification failed
	// validation and no container was created.
	InvalidSpec ErrorCode = iota

	// ResourceUnavailable means a kernel isolation resource (namespace,
	// cgroup) could not be allocated. The caller may retry after freeing
	// host capacity.
	ResourceUnavailable

	// PermissionDenied means the security profile could not be applied.
	// This is always fatal to the start attempt.
	PermissionDenied

	// StartFailed means the init process could not be forked or execed.
	StartFailed

	// InvalidStateTransition means the requested lifecycle edge is not in
	// the transition table or the container was not in the expected state.
	InvalidStateTransition

	// NotFound means no container with the given id is registered.
	NotFound

	// Conflict means the operation is incompatible with the container's
	// current state, for example removing a running container.
	Conflict

	// Timeout means a stopped process outlived both the grace period and
	// the forced kill.
	Timeout

	// SystemError is an unexpected kernel or host failure.
	SystemError
)

func (c ErrorCode) String() string {
	switch c {
	case InvalidSpec:
		return "Invalid spec"
	case ResourceUnavailable:
		return "Resource unavailable"
	case PermissionDenied:
		return "Permission denied"
	case StartFailed:
		return "Start failed"
	case InvalidStateTransition:
		return "Invalid state transition"
	case NotFound:
		return "Container not found"
	case Conflict:
		return "Conflict"
	case Timeout:
		return "Timeout"
	case SystemError:
		return "System error"
	}
	return "Unknown error"
}

// Error is the error type returned by all API calls in this package.
type Error interface {
	error

	// Code returns the error identifier for the failure.
	Code() ErrorCode
}

type genericError struct {
	Timestamp time.Time
	ECode     ErrorCode
	Err       error `json:"-"`
	Message   string
}

func (e *genericError) Error() string {
	return e.Message
}

func (e *genericError) Code() ErrorCode {
	return e.ECode
}

func newGenericError(err error, c ErrorCode) Error {
	if le, ok := err.(Error); ok {
		return le
	}
	return &genericError{
		Timestamp: time.Now(),
		Err:       err,
		ECode:     c,
		Message:   err.Error(),
	}
}

func newGenericErrorf(c ErrorCode, format string, args ...interface{}) Error {
	err := fmt.Errorf(format, args...)
	return &genericError{
		Timestamp: time.Now(),
		Err:       err,
		ECode:     c,
		Message:   err.Error(),
	}
}

func newSystemError(err error) Error {
	if le, ok := err.(Error); ok {
		return le
	}
	return &genericError{
		Timestamp: time.Now(),
		Err:       errors.WithStack(err),
		ECode:     SystemError,
		Message:   err.Error(),
	}
}

// IsCode reports whether err carries the given runtime error code.
func IsCode(err error, c ErrorCode) bool {
	le, ok := err.(Error)
	return ok && le.Code() == c
}
