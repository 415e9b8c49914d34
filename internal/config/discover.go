package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Environment overrides consulted during discovery.
const (
	EnvBinary = "INFERD_SERVER_BIN"
	EnvModel  = "INFERD_MODEL"
)

// serverBinaryNames are tried on PATH, most specific first.
var serverBinaryNames = []string{"llama-server", "server"}

// wellKnownBinaryDirs are checked after PATH.
var wellKnownBinaryDirs = []string{
	"/usr/local/bin",
	"/opt/llama.cpp/bin",
	"~/llama.cpp/build/bin",
}

// FindServerBinary resolves the inference-server binary. Order: explicit
// config value, environment, PATH lookup, well-known install locations.
func FindServerBinary(explicit string) (string, error) {
	if explicit != "" {
		p, err := expandHome(explicit)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("configured server binary: %w", err)
		}
		return p, nil
	}
	if v := os.Getenv(EnvBinary); v != "" {
		return FindServerBinary(v)
	}
	for _, name := range serverBinaryNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	for _, dir := range wellKnownBinaryDirs {
		d, err := expandHome(dir)
		if err != nil {
			continue
		}
		for _, name := range serverBinaryNames {
			p := filepath.Join(d, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("no inference-server binary found; set %s or binary_path", EnvBinary)
}

// FindModel resolves the model file. Order: explicit config value,
// environment, then a scan of modelsDir for the largest *.gguf file (larger
// quantizations are assumed to be the intended default).
func FindModel(explicit, modelsDir string) (string, error) {
	if explicit != "" {
		p, err := expandHome(explicit)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("configured model: %w", err)
		}
		return p, nil
	}
	if v := os.Getenv(EnvModel); v != "" {
		return FindModel(v, "")
	}
	if modelsDir == "" {
		return "", fmt.Errorf("no model configured; set %s, model_path or models_dir", EnvModel)
	}
	dir, err := expandHome(modelsDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("read models dir: %w", err)
	}
	var best string
	var bestSize int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.Size() > bestSize {
			best = filepath.Join(abs, e.Name())
			bestSize = info.Size()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no *.gguf files in %s", abs)
	}
	return best, nil
}
