// Package manager is the lifecycle facade over the process supervisor and the
// completion client. It is structured into small files by concern:
//
//   - manager.go: Manager type, Initialize/Shutdown, init-attempt locking,
//     status aggregation.
//   - generate.go: unary and streaming completion entry points, parameter
//     merging, and the warm-up stream emitted while the model loads.
//   - modelinfo.go: cached model metadata and the memory-usage estimate.
//   - errors.go: facade error types and predicates.
//
// One Manager coordinates exactly one server process. The init-in-progress
// flag plus a monotonic last-attempt timestamp are the only synchronization
// the design needs; concurrent Initialize calls collapse to a single launch.
package manager
