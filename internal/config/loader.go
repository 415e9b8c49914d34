// Package config loads runtime configuration and resolves the server binary
// and model file locations.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon. Zero values mean
// "unspecified" and are replaced by defaults downstream.
type Config struct {
	// Addr is the daemon's own HTTP listen address.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// BinaryPath points at the inference-server binary. Empty triggers
	// discovery (env, then PATH, then well-known locations).
	BinaryPath string `json:"binary_path" yaml:"binary_path" toml:"binary_path"`
	// ModelPath points at the model file. Empty triggers a models-dir scan.
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	// ModelsDir is scanned for *.gguf files when ModelPath is empty.
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`

	CtxSize   int    `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	BatchSize int    `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	Threads   int    `json:"threads" yaml:"threads" toml:"threads"`
	GPULayers *int   `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	Host      string `json:"host" yaml:"host" toml:"host"`
	Port      int    `json:"port" yaml:"port" toml:"port"`

	StartupTimeoutSec int  `json:"startup_timeout_sec" yaml:"startup_timeout_sec" toml:"startup_timeout_sec"`
	EnableCORS        bool `json:"enable_cors" yaml:"enable_cors" toml:"enable_cors"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
