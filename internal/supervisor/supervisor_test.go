package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// writeScript installs a fake server binary as a shell script.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-llama-server")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := os.WriteFile(path, []byte("GGUF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// newTestSupervisor builds a supervisor with short timings and stubbed
// capability probes.
func newTestSupervisor(t *testing.T, cfg ServerConfig) *Supervisor {
	t.Helper()
	s := New(cfg, zerolog.Nop())
	s.detectGPULayers = func() int { return 0 }
	s.flagSupported = func(bin, flag string) bool { return true }
	s.settleDelay = 10 * time.Millisecond
	s.retryBackoff = 10 * time.Millisecond
	s.stopGrace = 500 * time.Millisecond
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

const readyScript = `echo "HTTP server listening on 127.0.0.1:8081"
echo "model loaded" >&2
exec sleep 60
`

func TestStart_Success(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, readyScript),
		ModelPath:  writeModel(t),
		GPULayers:  0,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State(); got != StateInitializing {
		t.Fatalf("state after Start = %s, want %s", got, StateInitializing)
	}
	if !s.Running() || s.PID() == 0 {
		t.Fatalf("process not recorded as running")
	}

	s.MarkReady()
	if got := s.State(); got != StateReady {
		t.Fatalf("MarkReady did not promote: %s", got)
	}
}

func TestStart_NoOpWhenRunning(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, readyScript),
		ModelPath:  writeModel(t),
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	pid := s.PID()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start must be a no-op, got: %v", err)
	}
	if s.PID() != pid {
		t.Fatalf("second Start relaunched the process")
	}
}

func TestStart_BinaryNotFound(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: "/nonexistent/llama-server",
		ModelPath:  writeModel(t),
	})
	err := s.Start(context.Background())
	if !IsBinaryNotFound(err) {
		t.Fatalf("want binary-not-found, got %v", err)
	}
}

func TestStart_ModelNotFound(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, readyScript),
		ModelPath:  "/nonexistent/model.gguf",
	})
	err := s.Start(context.Background())
	if !IsModelNotFound(err) {
		t.Fatalf("want model-not-found, got %v", err)
	}
}

func TestStart_ExitBeforeReady(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, "echo booting >&2\nexit 3\n"),
		ModelPath:  writeModel(t),
	})
	err := s.Start(context.Background())
	if !IsProcessExited(err) {
		t.Fatalf("want process-exited, got %v", err)
	}
	if s.Running() {
		t.Fatalf("dead process still recorded as running")
	}
}

func TestStart_TimeoutWithoutSignals(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath:     writeScript(t, "exec sleep 60\n"),
		ModelPath:      writeModel(t),
		StartupTimeout: 200 * time.Millisecond,
	})
	err := s.Start(context.Background())
	if !IsStartupTimeout(err) {
		t.Fatalf("want startup-timeout, got %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("timed-out start must leave supervisor stopped, got %s", s.State())
	}
}

func TestStart_LenientTimeoutWithPartialSignal(t *testing.T) {
	// The server binds its listener but never prints the final line; the
	// timer firing after a partial signal is a success.
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath:     writeScript(t, "echo \"server listening on 127.0.0.1\"\nexec sleep 60\n"),
		ModelPath:      writeModel(t),
		StartupTimeout: 300 * time.Millisecond,
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("partial readiness must complete leniently, got: %v", err)
	}
	if s.State() != StateInitializing {
		t.Fatalf("state = %s", s.State())
	}
}

// corsScript rejects --cors and records its argument vector otherwise.
func corsScript(argsFile string) string {
	return `for a in "$@"; do
  if [ "$a" = "--cors" ]; then
    echo "error: unknown argument: --cors" >&2
    exit 1
  fi
done
echo "$@" > ` + argsFile + `
echo "server listening on 127.0.0.1:8081"
echo "all slots are idle"
exec sleep 60
`
}

func TestStartWithRetry_DisablesRejectedCORSFlag(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args.txt")
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, corsScript(argsFile)),
		ModelPath:  writeModel(t),
		EnableCORS: true,
	})
	if err := s.StartWithRetry(context.Background(), 3); err != nil {
		t.Fatalf("StartWithRetry: %v", err)
	}
	b, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("args file not written: %v", err)
	}
	if strings.Contains(string(b), "--cors") {
		t.Fatalf("retry launched with the rejected flag: %s", b)
	}
	// The unsupported verdict is cached for the supervisor's lifetime.
	s.mu.Lock()
	checked, supported := s.corsChecked, s.corsSupported
	s.mu.Unlock()
	if !checked || supported {
		t.Fatalf("CORS support cache not updated: checked=%v supported=%v", checked, supported)
	}
}

func TestStartWithRetry_OtherRejectionPropagates(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, "echo \"error: invalid argument: --mlock\" >&2\nexit 1\n"),
		ModelPath:  writeModel(t),
	})
	err := s.StartWithRetry(context.Background(), 2)
	flag, ok := IsArgumentRejected(err)
	if !ok {
		t.Fatalf("want argument-rejected, got %v", err)
	}
	if flag != "--mlock" {
		t.Fatalf("parsed flag %q", flag)
	}
}

func TestStop_ClearsState(t *testing.T) {
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, readyScript),
		ModelPath:  writeModel(t),
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Running() || s.State() != StateStopped || s.PID() != 0 {
		t.Fatalf("stop did not clear state: running=%v state=%s pid=%d", s.Running(), s.State(), s.PID())
	}
}

func TestStop_EscalatesToKill(t *testing.T) {
	// The script ignores SIGTERM; Stop must escalate to SIGKILL within its
	// grace window.
	body := `trap "" TERM
echo "server listening on 127.0.0.1"
echo "model loaded"
while true; do sleep 1; done
`
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, body),
		ModelPath:  writeModel(t),
	})
	s.stopGrace = 200 * time.Millisecond
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Stop(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Stop hung on a TERM-ignoring process")
	}
	if s.Running() {
		t.Fatalf("process still recorded after forced kill")
	}
}

func TestExitHandler_ClearsRunningFlag(t *testing.T) {
	// Process dies on its own after readiness; the supervisor must observe
	// the exit and clear state without any Stop call.
	body := `echo "server listening on 127.0.0.1"
echo "model loaded"
sleep 0.2
exit 0
`
	s := newTestSupervisor(t, ServerConfig{
		BinaryPath: writeScript(t, body),
		ModelPath:  writeModel(t),
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for s.Running() {
		if time.Now().After(deadline) {
			t.Fatalf("exit handler never cleared the running flag")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if s.State() != StateStopped {
		t.Fatalf("state after unexpected exit = %s", s.State())
	}
}
