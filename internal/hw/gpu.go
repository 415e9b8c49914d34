// Package hw probes host hardware and installed binaries for capabilities that
// shape the inference-server launch arguments. Every probe degrades to a
// conservative answer on failure; absence of a GPU or a flag is a valid mode,
// not an error.
package hw

import (
	"os/exec"
	"strconv"
	"strings"
)

// runCommand is swapped out in tests.
var runCommand = func(name string, arg ...string) ([]byte, error) {
	return exec.Command(name, arg...).CombinedOutput()
}

// gpuLayerStep maps a minimum VRAM (MB) to the number of model layers to
// offload. Ordered highest first.
type gpuLayerStep struct {
	minVRAMMB int
	layers    int
}

var gpuLayerSteps = []gpuLayerStep{
	{24000, 40},
	{16000, 32},
	{12000, 24},
	{8000, 16},
	{6000, 8},
	{4000, 4},
}

// DetectGPULayers queries the host GPU via nvidia-smi and maps total VRAM to a
// layer-offload count. Returns 0 on any failure: missing tool, no device, or
// unparseable output.
func DetectGPULayers() int {
	out, err := runCommand("nvidia-smi", "--query-gpu=memory.total", "--format=csv,noheader,nounits")
	if err != nil {
		return 0
	}
	return LayersForVRAM(parseVRAMMB(string(out)))
}

// LayersForVRAM resolves the step table for a given VRAM size in MB.
func LayersForVRAM(vramMB int) int {
	for _, s := range gpuLayerSteps {
		if vramMB > s.minVRAMMB {
			return s.layers
		}
	}
	return 0
}

// parseVRAMMB extracts the first integer from nvidia-smi output. Multi-GPU
// hosts report one line per device; the first device wins.
func parseVRAMMB(out string) int {
	line := out
	if i := strings.IndexByte(out, '\n'); i >= 0 {
		line = out[:i]
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0
	}
	return n
}

// FlagSupported reports whether the binary at path advertises the given flag
// in its help output. Flag sets vary across server builds, so callers use this
// to drop optional arguments before launch. A binary that cannot be executed
// is treated as not supporting the flag.
func FlagSupported(binaryPath, flag string) bool {
	out, err := runCommand(binaryPath, "--help")
	if err != nil && len(out) == 0 {
		return false
	}
	return strings.Contains(string(out), flag)
}
