// Package llama speaks the native HTTP protocol of a llama.cpp-style
// inference server. It is structured into small files by concern:
//
//   - client.go: Client construction and the unary completion call.
//   - stream.go: pull-based iterator over the line-delimited JSON stream.
//   - probe.go: tolerant health probing (200 and 503 both count as up).
//   - prompt.go: turn-delimited prompt assembly from a message list.
//   - params.go: wire-level sampling parameters and defaults.
//   - errors.go: protocol error types and predicates.
//
// The package owns no process lifecycle; it only issues requests against a
// base URL handed to it. Supervision lives in internal/supervisor and the
// facade combining the two in internal/manager.
package llama
