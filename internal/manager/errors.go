package manager

import (
	"fmt"
	"time"
)

// initInProgressError signals an Initialize call that overlapped another.
type initInProgressError struct{}

func (initInProgressError) Error() string { return "initialization already in progress" }

// IsInitInProgress reports whether err indicates an overlapping Initialize.
func IsInitInProgress(err error) bool {
	_, ok := err.(initInProgressError)
	return ok
}

// cooldownError signals an Initialize call inside the cool-down window.
type cooldownError struct{ remaining time.Duration }

func (e cooldownError) Error() string {
	return fmt.Sprintf("initialization attempted too soon, retry in %s", e.remaining.Round(time.Millisecond))
}

// IsCooldown reports whether err indicates the cool-down window.
func IsCooldown(err error) bool {
	_, ok := err.(cooldownError)
	return ok
}

// notRunningError signals a completion request against a stopped server.
type notRunningError struct{}

func (notRunningError) Error() string { return "inference server is not running" }

// IsNotRunning reports whether err indicates the server is down.
func IsNotRunning(err error) bool {
	_, ok := err.(notRunningError)
	return ok
}

// serverInitializingError is a soft failure: the server is up but the model
// is still loading.
type serverInitializingError struct{}

func (serverInitializingError) Error() string {
	return "inference server is still loading the model"
}

// IsServerInitializing reports whether err indicates the loading window.
func IsServerInitializing(err error) bool {
	_, ok := err.(serverInitializingError)
	return ok
}

// probeUnavailableError signals that the server never became reachable after
// a launch that itself reported success.
type probeUnavailableError struct{ polls int }

func (e probeUnavailableError) Error() string {
	return fmt.Sprintf("server not reachable after %d readiness polls", e.polls)
}

// IsProbeUnavailable reports whether err indicates exhausted readiness polls.
func IsProbeUnavailable(err error) bool {
	_, ok := err.(probeUnavailableError)
	return ok
}
