package supervisor

import (
	"fmt"
	"runtime"
	"time"
)

// Defaults applied by Normalize when the corresponding field is unset.
const (
	DefaultCtxSize        = 4096
	DefaultBatchSize      = 512
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8081
	DefaultStartupTimeout = 5 * time.Minute

	// GPULayersAuto asks the supervisor to resolve the layer count from
	// detected hardware before each launch.
	GPULayersAuto = -1

	// FlagCORS is the optional launch flag whose support varies across
	// server builds. It is probed once per supervisor lifetime and dropped
	// from the argument vector when unsupported or rejected.
	FlagCORS = "--cors"

	defaultSettleDelay  = 5 * time.Second
	defaultStopGrace    = 5 * time.Second
	defaultRetryBackoff = time.Second
)

// ServerConfig describes one launch of the inference server. Immutable per
// launch: the supervisor copies and resolves it before spawning.
type ServerConfig struct {
	BinaryPath string
	ModelPath  string
	CtxSize    int
	BatchSize  int
	Threads    int
	// GPULayers is the layer-offload count, or GPULayersAuto to detect.
	GPULayers      int
	Host           string
	Port           int
	StartupTimeout time.Duration
	EnableCORS     bool
}

// Normalize fills unset fields with defaults.
func (c ServerConfig) Normalize() ServerConfig {
	if c.CtxSize <= 0 {
		c.CtxSize = DefaultCtxSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	return c
}

// Args builds the launch argument vector. GPULayers must be resolved (not
// GPULayersAuto) by the time this is called.
func (c ServerConfig) Args() []string {
	args := []string{
		"--model", c.ModelPath,
		"--ctx-size", fmt.Sprint(c.CtxSize),
		"--batch-size", fmt.Sprint(c.BatchSize),
		"--threads", fmt.Sprint(c.Threads),
		"--n-gpu-layers", fmt.Sprint(c.GPULayers),
		"--host", c.Host,
		"--port", fmt.Sprint(c.Port),
		"--mlock",
	}
	if c.EnableCORS {
		args = append(args, FlagCORS, "*")
	}
	return args
}

// BaseURL is the HTTP address the launched server will listen on.
func (c ServerConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}
