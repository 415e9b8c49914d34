package types

// Message is a single conversational turn handed to the completion API.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string `json:"role"`
	// Content is the raw text of the turn.
	Content string `json:"content"`
}

// GenerateParams are the caller-tunable sampling parameters. Zero values mean
// "use the server default" and are replaced before dispatch.
type GenerateParams struct {
	Temperature      float64  `json:"temperature,omitempty"`
	TopP             float64  `json:"top_p,omitempty"`
	TopK             int      `json:"top_k,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	RepeatPenalty    float64  `json:"repeat_penalty,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64  `json:"frequency_penalty,omitempty"`
}

// ModelInfo is metadata reported by the inference server after the model is
// loaded. Used only for derived estimates, never for correctness decisions.
type ModelInfo struct {
	ContextLength int `json:"n_ctx"`
	LayerCount    int `json:"n_layer"`
	EmbeddingSize int `json:"n_embd"`
	VocabSize     int `json:"n_vocab"`
}
