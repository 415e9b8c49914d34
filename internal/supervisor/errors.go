package supervisor

import "fmt"

// binaryNotFoundError reports a missing server binary.
type binaryNotFoundError struct{ path string }

func (e binaryNotFoundError) Error() string { return "server binary not found: " + e.path }

// IsBinaryNotFound reports whether err indicates a missing server binary.
func IsBinaryNotFound(err error) bool {
	_, ok := err.(binaryNotFoundError)
	return ok
}

// modelNotFoundError reports a missing model file.
type modelNotFoundError struct{ path string }

func (e modelNotFoundError) Error() string { return "model file not found: " + e.path }

// IsModelNotFound reports whether err indicates a missing model file.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// argumentRejectedError reports that the server rejected a launch argument.
type argumentRejectedError struct {
	flag string
	line string
}

func (e argumentRejectedError) Error() string {
	return fmt.Sprintf("server rejected argument %s: %s", e.flag, e.line)
}

// IsArgumentRejected reports whether err is an argument rejection, and if so
// which flag was rejected (empty when the flag could not be parsed out).
func IsArgumentRejected(err error) (string, bool) {
	if e, ok := err.(argumentRejectedError); ok {
		return e.flag, true
	}
	return "", false
}

// startupTimeoutError reports that no readiness signal arrived in time.
type startupTimeoutError struct{ timeout string }

func (e startupTimeoutError) Error() string {
	return "server produced no readiness signal within " + e.timeout
}

// IsStartupTimeout reports whether err is a startup timeout.
func IsStartupTimeout(err error) bool {
	_, ok := err.(startupTimeoutError)
	return ok
}

// processExitedError reports that the process died before or during startup.
type processExitedError struct{ detail string }

func (e processExitedError) Error() string { return "server process exited: " + e.detail }

// IsProcessExited reports whether err indicates an unexpected process exit.
func IsProcessExited(err error) bool {
	_, ok := err.(processExitedError)
	return ok
}
