package supervisor

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/hw"
)

// State is the lifecycle state of the supervised process.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	// StateInitializing means the process is up and listening but the model
	// may still be loading; the HTTP surface answers 503 in that window.
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	// StateError is only reachable through startup argument rejection; it
	// transitions back to StateStopped before any retry.
	StateError State = "error"
)

// Supervisor launches, monitors and stops one external inference-server
// process. It assumes single-writer access to Start/Stop; concurrent readers
// of derived state are safe.
type Supervisor struct {
	mu        sync.Mutex
	cfg       ServerConfig
	logger    zerolog.Logger
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	state     State
	exited    chan struct{}
	exitErr   error

	corsChecked   bool
	corsSupported bool

	// Probes, swappable in tests.
	detectGPULayers func() int
	flagSupported   func(bin, flag string) bool

	settleDelay  time.Duration
	stopGrace    time.Duration
	retryBackoff time.Duration
}

// New constructs a stopped Supervisor for the given launch configuration.
func New(cfg ServerConfig, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:             cfg.Normalize(),
		logger:          logger.With().Str("component", "supervisor").Logger(),
		state:           StateStopped,
		detectGPULayers: hw.DetectGPULayers,
		flagSupported:   hw.FlagSupported,
		settleDelay:     defaultSettleDelay,
		stopGrace:       defaultStopGrace,
		retryBackoff:    defaultRetryBackoff,
	}
}

// BaseURL is the address the supervised server listens on.
func (s *Supervisor) BaseURL() string { return s.cfg.BaseURL() }

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running reports whether the OS process is alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// PID returns the process id, or 0 when stopped.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// StartedAt returns the launch time of the current process, zero when stopped.
func (s *Supervisor) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return time.Time{}
	}
	return s.startedAt
}

// MarkReady promotes Initializing to Ready. Called by the lifecycle facade
// after a successful probe; readiness is never asserted from the log signal
// alone.
func (s *Supervisor) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInitializing && s.cmd != nil {
		s.state = StateReady
	}
}

// Start launches the server process and waits for its readiness signal.
// A no-op returning nil when a process is already up. On success the state is
// Initializing: the listener is bound, but the facade must still probe before
// marking Ready.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd != nil && s.state != StateStopped && s.state != StateError {
		s.mu.Unlock()
		return nil
	}

	cfg := s.cfg
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		s.mu.Unlock()
		startAttempts.WithLabelValues("binary_not_found").Inc()
		return binaryNotFoundError{path: cfg.BinaryPath}
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		s.mu.Unlock()
		startAttempts.WithLabelValues("model_not_found").Inc()
		return modelNotFoundError{path: cfg.ModelPath}
	}
	if cfg.GPULayers == GPULayersAuto {
		s.mu.Unlock()
		layers := s.detectGPULayers()
		s.mu.Lock()
		cfg.GPULayers = layers
	}
	if cfg.EnableCORS {
		if !s.corsChecked {
			bin := cfg.BinaryPath
			s.mu.Unlock()
			supported := s.flagSupported(bin, FlagCORS)
			s.mu.Lock()
			s.corsChecked = true
			s.corsSupported = supported
		}
		if !s.corsSupported {
			cfg.EnableCORS = false
		}
	}

	cmd := exec.Command(cfg.BinaryPath, cfg.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		startAttempts.WithLabelValues("spawn_failed").Inc()
		return processExitedError{detail: err.Error()}
	}

	watch := newLogWatch()
	exited := make(chan struct{})
	s.cmd = cmd
	s.pid = cmd.Process.Pid
	s.startedAt = time.Now()
	s.state = StateStarting
	s.exited = exited
	s.exitErr = nil
	s.mu.Unlock()

	s.logger.Info().Int("pid", cmd.Process.Pid).
		Int("gpu_layers", cfg.GPULayers).Bool("cors", cfg.EnableCORS).
		Str("model", cfg.ModelPath).Msg("server process launched")

	// Wait must not run until both scanners have drained their pipes, or a
	// terminal diagnostic line can be lost when Wait closes them.
	var scanners sync.WaitGroup
	scanners.Add(2)
	go func() {
		defer scanners.Done()
		s.scanLines(stdout, watch)
	}()
	go func() {
		defer scanners.Done()
		s.scanLines(stderr, watch)
	}()
	go func() {
		scanners.Wait()
		err := cmd.Wait()
		s.onExit(cmd, err, exited)
	}()

	timer := time.NewTimer(cfg.StartupTimeout)
	defer timer.Stop()

	rejectAttempt := func(rej argRejection) error {
		s.mu.Lock()
		s.state = StateError
		if rej.flag == FlagCORS {
			s.corsChecked = true
			s.corsSupported = false
		}
		s.mu.Unlock()
		s.logger.Warn().Str("flag", rej.flag).Str("line", rej.line).Msg("server rejected a launch argument")
		_ = s.Stop(ctx)
		startAttempts.WithLabelValues("argument_rejected").Inc()
		return argumentRejectedError{flag: rej.flag, line: rej.line}
	}

	select {
	case <-watch.ready:
		s.logger.Info().Int("pid", cmd.Process.Pid).Msg("readiness signals observed")
	case rej := <-watch.rejected:
		return rejectAttempt(rej)
	case <-exited:
		// The scanners drained before exit was reported, so any rejection
		// line is already queued.
		select {
		case rej := <-watch.rejected:
			return rejectAttempt(rej)
		default:
		}
		detail := "before readiness"
		s.mu.Lock()
		if s.exitErr != nil {
			detail = s.exitErr.Error()
		}
		s.mu.Unlock()
		startAttempts.WithLabelValues("exited_early").Inc()
		return processExitedError{detail: detail}
	case <-timer.C:
		if !watch.partial() {
			_ = s.Stop(ctx)
			startAttempts.WithLabelValues("timeout").Inc()
			return startupTimeoutError{timeout: cfg.StartupTimeout.String()}
		}
		// At least one readiness signal arrived; the server is merely slow
		// to emit its final line. Treat as started.
		s.logger.Warn().Msg("startup timer fired after partial readiness; continuing")
	case <-ctx.Done():
		_ = s.Stop(context.Background())
		return ctx.Err()
	}

	// Settle delay: the listener can bind slightly before request handling
	// is actually initialized.
	select {
	case <-time.After(s.settleDelay):
	case <-exited:
		startAttempts.WithLabelValues("exited_early").Inc()
		return processExitedError{detail: "during settle delay"}
	case <-ctx.Done():
		_ = s.Stop(context.Background())
		return ctx.Err()
	}

	s.mu.Lock()
	if s.cmd == cmd && s.state == StateStarting {
		s.state = StateInitializing
	}
	s.mu.Unlock()
	startAttempts.WithLabelValues("ok").Inc()
	return nil
}

// StartWithRetry wraps Start in a bounded attempt loop. Argument rejections
// of the optional CORS flag are recovered by relaunching without it (Start
// already cached the flag as unsupported); every other failure waits a fixed
// backoff before the next attempt.
func (s *Supervisor) StartWithRetry(ctx context.Context, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := s.Start(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if flag, ok := IsArgumentRejected(err); ok && flag == FlagCORS {
			s.logger.Info().Int("attempt", attempt).Msg("retrying launch without CORS flag")
			continue
		}
		if attempt == maxAttempts {
			break
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Msg("start attempt failed; backing off")
		select {
		case <-time.After(s.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Stop terminates the process: graceful signal, bounded grace period, then a
// forced kill. State is always cleared afterwards; a half-stopped supervisor
// is unrecoverable otherwise.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		s.clear()
		return nil
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(s.stopGrace):
		s.logger.Warn().Int("pid", cmd.Process.Pid).Msg("graceful stop timed out; killing")
		_ = cmd.Process.Kill()
		select {
		case <-exited:
		case <-time.After(s.stopGrace):
		case <-ctx.Done():
		}
	case <-ctx.Done():
		_ = cmd.Process.Kill()
	}
	s.clear()
	return nil
}

func (s *Supervisor) clear() {
	s.mu.Lock()
	s.cmd = nil
	s.pid = 0
	s.state = StateStopped
	s.mu.Unlock()
}

// onExit runs when the process exits for any reason. It clears the handle and
// running state; the supervisor never resurrects a dead process on its own.
func (s *Supervisor) onExit(cmd *exec.Cmd, err error, exited chan struct{}) {
	s.mu.Lock()
	s.exitErr = err
	if s.cmd == cmd {
		s.cmd = nil
		s.pid = 0
		if s.state != StateError {
			s.state = StateStopped
		}
	}
	s.mu.Unlock()
	processExits.Inc()
	ev := s.logger.Info()
	if err != nil {
		ev = s.logger.Warn().Err(err)
	}
	ev.Msg("server process exited")
	close(exited)
}

func (s *Supervisor) scanLines(r io.Reader, watch *logWatch) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		s.logger.Debug().Str("line", line).Msg("server log")
		watch.observe(line)
	}
}
