package common

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned when the automation client or window handle is
// requested while the application is not running.
var ErrNotRunning = errors.New("application is not running")

// ErrSkipped marks a scenario that never ran because setup failed.
var ErrSkipped = errors.New("scenario skipped")

// StartupError reports that the application failed to launch or exited
// before the automation transport completed its handshake.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("startup: %s", e.Op)
	}
	return fmt.Sprintf("startup: %s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// TimeoutError reports that a readiness, handshake or shutdown bound was exceeded.
type TimeoutError struct {
	Op      string
	Timeout string
	Err     error // last observed cause, may be nil
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timeout: %s did not complete within %s", e.Op, e.Timeout)
	if e.Err != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Err)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError reports a failed call on the automation channel.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AssertionError reports that a scenario's expected condition was false.
type AssertionError struct {
	Scenario string
	Message  string
}

func (e *AssertionError) Error() string {
	if e.Scenario == "" {
		return fmt.Sprintf("assertion failed: %s", e.Message)
	}
	return fmt.Sprintf("assertion failed in %q: %s", e.Scenario, e.Message)
}

// ShutdownError reports that teardown could not stop the process.
type ShutdownError struct {
	PID int
	Err error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown: process %d: %v", e.PID, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }

// IsStartup reports whether err is or wraps a StartupError.
func IsStartup(err error) bool {
	var target *StartupError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsAssertion reports whether err is or wraps an AssertionError.
func IsAssertion(err error) bool {
	var target *AssertionError
	return errors.As(err, &target)
}

// IsShutdown reports whether err is or wraps a ShutdownError.
func IsShutdown(err error) bool {
	var target *ShutdownError
	return errors.As(err, &target)
}

// ErrorKind returns a short classification used in reports and storage.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSkipped):
		return "skipped"
	case IsAssertion(err):
		return "assertion"
	case IsTimeout(err):
		return "timeout"
	case IsStartup(err):
		return "startup"
	case IsTransport(err):
		return "transport"
	case IsShutdown(err):
		return "shutdown"
	default:
		return "error"
	}
}
