package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inferd/internal/llama"
	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

// Defaults applied when the corresponding Config fields are unset.
const (
	defaultMaxStartAttempts = 3
	defaultCooldown         = 5 * time.Second
	defaultStaleLockTimeout = 10 * time.Minute
	defaultReadinessPolls   = 30
	defaultShutdownWait     = 10 * time.Second
)

// Config holds the facade tunables.
type Config struct {
	// MaxStartAttempts bounds the supervisor launch retry loop.
	MaxStartAttempts int
	// Cooldown is the minimum interval between Initialize attempts.
	Cooldown time.Duration
	// StaleLockTimeout force-clears a wedged init-in-progress flag.
	StaleLockTimeout time.Duration
	// ReadinessPolls bounds the post-launch probe loop.
	ReadinessPolls int
	// ShutdownWait bounds how long Shutdown waits for an in-flight
	// Initialize before stopping the process under it.
	ShutdownWait time.Duration
}

func (c Config) normalize() Config {
	if c.MaxStartAttempts <= 0 {
		c.MaxStartAttempts = defaultMaxStartAttempts
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	if c.StaleLockTimeout <= 0 {
		c.StaleLockTimeout = defaultStaleLockTimeout
	}
	if c.ReadinessPolls <= 0 {
		c.ReadinessPolls = defaultReadinessPolls
	}
	if c.ShutdownWait <= 0 {
		c.ShutdownWait = defaultShutdownWait
	}
	return c
}

// Process is the supervisor surface the facade depends on.
type Process interface {
	StartWithRetry(ctx context.Context, maxAttempts int) error
	Stop(ctx context.Context) error
	Running() bool
	State() supervisor.State
	MarkReady()
	PID() int
	StartedAt() time.Time
}

// Manager combines the supervisor and the completion client behind idempotent
// lifecycle operations.
type Manager struct {
	cfg    Config
	proc   Process
	client *llama.Client
	logger zerolog.Logger

	mu             sync.Mutex
	initInProgress bool
	initStarted    time.Time
	initDone       chan struct{}
	lastAttempt    time.Time
	modelInfo      *types.ModelInfo
}

// New constructs a Manager over the given process supervisor and client.
func New(proc Process, client *llama.Client, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg.normalize(),
		proc:   proc,
		client: client,
		logger: logger.With().Str("component", "manager").Logger(),
	}
}

// Initialize brings the server up: capability-resolved launch, readiness
// polling, and a best-effort metadata fetch. Idempotent: a server that
// already answers probes short-circuits to success. Overlapping calls and
// calls inside the cool-down window are rejected with typed errors.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	now := time.Now()
	if m.initInProgress {
		if now.Sub(m.initStarted) <= m.cfg.StaleLockTimeout {
			m.mu.Unlock()
			return initInProgressError{}
		}
		// A wedged attempt has held the flag past the stale-lock timeout;
		// force-clear rather than brick the lifecycle forever.
		m.logger.Warn().Time("started", m.initStarted).Msg("force-clearing stale init lock")
		m.initInProgress = false
	}
	if !m.lastAttempt.IsZero() {
		if wait := m.cfg.Cooldown - now.Sub(m.lastAttempt); wait > 0 {
			m.mu.Unlock()
			return cooldownError{remaining: wait}
		}
	}
	m.initInProgress = true
	m.initStarted = now
	m.lastAttempt = now
	done := make(chan struct{})
	m.initDone = done
	m.mu.Unlock()

	logger := m.logger.With().Str("attempt", uuid.NewString()[:8]).Logger()
	defer func() {
		m.mu.Lock()
		m.initInProgress = false
		m.mu.Unlock()
		close(done)
	}()

	if res := m.client.Probe(ctx); res.Success {
		logger.Info().Str("status", res.Status).Msg("server already answering probes")
		m.proc.MarkReady()
		return nil
	}

	if err := m.proc.StartWithRetry(ctx, m.cfg.MaxStartAttempts); err != nil {
		logger.Error().Err(err).Msg("server launch failed")
		return err
	}

	if err := m.pollUntilReachable(ctx, logger); err != nil {
		return err
	}
	m.proc.MarkReady()
	logger.Info().Msg("server initialized")

	// Metadata failure only disables memory-estimate features.
	if info, err := m.client.ModelInfo(ctx); err == nil {
		m.mu.Lock()
		m.modelInfo = info
		m.mu.Unlock()
	} else {
		logger.Debug().Err(err).Msg("model metadata unavailable")
	}
	return nil
}

// pollUntilReachable waits for the first successful probe with an escalating
// per-attempt delay.
func (m *Manager) pollUntilReachable(ctx context.Context, logger zerolog.Logger) error {
	delay := 500 * time.Millisecond
	for i := 0; i < m.cfg.ReadinessPolls; i++ {
		if res := m.client.Probe(ctx); res.Success {
			logger.Info().Str("status", res.Status).Int("polls", i+1).Msg("server reachable")
			return nil
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if delay < 5*time.Second {
			delay += 500 * time.Millisecond
		}
	}
	return probeUnavailableError{polls: m.cfg.ReadinessPolls}
}

// Shutdown stops the server. If an Initialize is in flight it waits a bounded
// time first, to avoid killing a half-started process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	inProgress := m.initInProgress
	done := m.initDone
	m.mu.Unlock()
	if inProgress && done != nil {
		select {
		case <-done:
		case <-time.After(m.cfg.ShutdownWait):
			m.logger.Warn().Msg("shutdown proceeding past an in-flight initialization")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	err := m.proc.Stop(ctx)
	m.mu.Lock()
	m.modelInfo = nil
	m.mu.Unlock()
	return err
}

// Status reports the reconciled view: probe classification first, supervisor
// process state as the tiebreaker when the HTTP surface is unreachable.
func (m *Manager) Status(ctx context.Context) types.StatusResponse {
	res := m.client.Probe(ctx)
	running := m.proc.Running()
	st := types.StatusResponse{
		ProcessRunning: running,
		State:          string(m.proc.State()),
		PID:            m.proc.PID(),
	}
	switch {
	case res.Success && res.Status == llama.StatusRunning:
		st.HTTPStatus = llama.StatusRunning
		st.Message = "inference server is running"
	case res.Success:
		st.HTTPStatus = llama.StatusInitializing
		st.Message = "inference server is up, model still loading"
	case running:
		st.HTTPStatus = "starting"
		st.Message = "server process is up but not yet listening"
	default:
		st.HTTPStatus = "stopped"
		st.Message = "inference server is not running"
	}
	m.mu.Lock()
	info := m.modelInfo
	m.mu.Unlock()
	if info != nil {
		st.Model = info
		st.EstMemoryMB = EstimateMemoryMB(info)
	}
	if t := m.proc.StartedAt(); !t.IsZero() {
		st.UptimeSeconds = int64(time.Since(t).Seconds())
	}
	return st
}
