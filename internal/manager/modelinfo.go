package manager

import "inferd/pkg/types"

// EstimateMemoryMB is a heuristic estimate of the server's memory footprint,
// derived from cached model metadata. It assumes roughly 4-bit quantized
// weights plus an fp16 KV cache and is for display only; nothing
// correctness-relevant may depend on it. Returns 0 when metadata is missing
// or implausible.
func EstimateMemoryMB(info *types.ModelInfo) int {
	if info == nil || info.LayerCount <= 0 || info.EmbeddingSize <= 0 {
		return 0
	}
	layers := int64(info.LayerCount)
	embd := int64(info.EmbeddingSize)
	vocab := int64(info.VocabSize)
	ctx := int64(info.ContextLength)

	// ~12 weight matrices of n_embd^2 per transformer layer, plus the
	// embedding table, at ~0.5 bytes per parameter when quantized.
	weightParams := layers*embd*embd*12 + vocab*embd
	weightBytes := weightParams / 2

	// Two fp16 tensors (K and V) of n_embd per position per layer.
	kvBytes := ctx * layers * embd * 2 * 2

	return int((weightBytes + kvBytes) / (1024 * 1024))
}
