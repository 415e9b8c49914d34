package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"inferd/internal/config"
	"inferd/internal/httpapi"
	"inferd/internal/llama"
	"inferd/internal/manager"
	"inferd/internal/supervisor"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)
	flagCfg := config.Config{}
	gpuLayers := supervisor.GPULayersAuto

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor daemon and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(logLevel)

			cfg, err := resolveConfig(cmd, configPath, flagCfg, gpuLayers)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&configPath, "config", "c", os.Getenv("INFERD_CONFIG"), "Config file (.yaml, .json or .toml)")
	fl.StringVar(&logLevel, "log-level", envOr("INFERD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	fl.StringVar(&flagCfg.Addr, "addr", envOr("INFERD_ADDR", ":8090"), "Daemon HTTP listen address")
	fl.StringVar(&flagCfg.BinaryPath, "server-bin", "", "Path to the inference-server binary (default: discover)")
	fl.StringVar(&flagCfg.ModelPath, "model", "", "Path to the model file (default: discover)")
	fl.StringVar(&flagCfg.ModelsDir, "models-dir", "~/models/llm", "Directory scanned for *.gguf when --model is unset")
	fl.IntVar(&flagCfg.CtxSize, "ctx-size", 0, "Context window size passed to the server")
	fl.IntVar(&flagCfg.BatchSize, "batch-size", 0, "Batch size passed to the server")
	fl.IntVar(&flagCfg.Threads, "threads", 0, "Thread count passed to the server (0 = server default)")
	fl.IntVar(&gpuLayers, "gpu-layers", supervisor.GPULayersAuto, "GPU layers to offload (-1 = auto-detect)")
	fl.StringVar(&flagCfg.Host, "host", "", "Host the inference server binds to")
	fl.IntVar(&flagCfg.Port, "port", 0, "Port the inference server binds to")
	fl.IntVar(&flagCfg.StartupTimeoutSec, "startup-timeout-sec", 0, "Seconds to wait for the server to become ready")
	fl.BoolVar(&flagCfg.EnableCORS, "cors", false, "Ask the inference server to allow cross-origin requests")

	return cmd
}

// resolveConfig merges the config file (if any) with flag overrides. A flag
// the user set explicitly wins over the file value.
func resolveConfig(cmd *cobra.Command, path string, flags config.Config, gpuLayers int) (config.Config, error) {
	cfg := flags
	cfg.GPULayers = &gpuLayers
	if path == "" {
		return cfg, nil
	}
	file, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	fileWins := func(name string) bool { return !cmd.Flags().Changed(name) }
	if fileWins("addr") && file.Addr != "" {
		cfg.Addr = file.Addr
	}
	if fileWins("server-bin") && file.BinaryPath != "" {
		cfg.BinaryPath = file.BinaryPath
	}
	if fileWins("model") && file.ModelPath != "" {
		cfg.ModelPath = file.ModelPath
	}
	if fileWins("models-dir") && file.ModelsDir != "" {
		cfg.ModelsDir = file.ModelsDir
	}
	if fileWins("ctx-size") && file.CtxSize != 0 {
		cfg.CtxSize = file.CtxSize
	}
	if fileWins("batch-size") && file.BatchSize != 0 {
		cfg.BatchSize = file.BatchSize
	}
	if fileWins("threads") && file.Threads != 0 {
		cfg.Threads = file.Threads
	}
	if fileWins("gpu-layers") && file.GPULayers != nil {
		cfg.GPULayers = file.GPULayers
	}
	if fileWins("host") && file.Host != "" {
		cfg.Host = file.Host
	}
	if fileWins("port") && file.Port != 0 {
		cfg.Port = file.Port
	}
	if fileWins("startup-timeout-sec") && file.StartupTimeoutSec != 0 {
		cfg.StartupTimeoutSec = file.StartupTimeoutSec
	}
	if fileWins("cors") && file.EnableCORS {
		cfg.EnableCORS = true
	}
	return cfg, nil
}

func runServe(parent context.Context, cfg config.Config, logger zerolog.Logger) error {
	binary, err := config.FindServerBinary(cfg.BinaryPath)
	if err != nil {
		return err
	}
	model, err := config.FindModel(cfg.ModelPath, cfg.ModelsDir)
	if err != nil {
		return err
	}
	logger.Info().Str("binary", binary).Str("model", model).Msg("resolved inference server")

	scfg := supervisor.ServerConfig{
		BinaryPath: binary,
		ModelPath:  model,
		CtxSize:    cfg.CtxSize,
		BatchSize:  cfg.BatchSize,
		Threads:    cfg.Threads,
		GPULayers:  supervisor.GPULayersAuto,
		Host:       cfg.Host,
		Port:       cfg.Port,
		EnableCORS: cfg.EnableCORS,
	}
	if cfg.GPULayers != nil {
		scfg.GPULayers = *cfg.GPULayers
	}
	if cfg.StartupTimeoutSec > 0 {
		scfg.StartupTimeout = time.Duration(cfg.StartupTimeoutSec) * time.Second
	}

	sup := supervisor.New(scfg, logger)
	client := llama.NewClient(sup.BaseURL(), 5*time.Second, logger)
	mgr := manager.New(sup, client, manager.Config{}, logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(ctx)
	httpapi.SetCORSOptions(cfg.EnableCORS, []string{"*"})

	addr := cfg.Addr
	if addr == "" {
		addr = ":8090"
	}
	serveErr := httpapi.ListenAndServe(ctx, addr, httpapi.NewRouter(mgr))

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown of inference server failed")
	}
	return serveErr
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
