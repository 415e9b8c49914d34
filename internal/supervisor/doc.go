// Package supervisor owns the external inference-server process: launch
// arguments, the OS process handle, and the authoritative lifecycle state.
// It is structured into small files by concern:
//
//   - config.go: ServerConfig, launch argument assembly, defaults.
//   - supervisor.go: Supervisor type, Start/StartWithRetry/Stop, exit handling.
//   - logwatch.go: readiness and argument-rejection detection over the
//     process log stream. Deliberately fuzzy substring matchers; the server
//     has no structured readiness signal.
//   - errors.go: startup error types and predicates.
//
// The Supervisor assumes single-writer access: callers serialize Start/Stop
// through the lifecycle facade in internal/manager. It never resurrects a
// dead process on its own; only an explicit Start call relaunches.
package supervisor
