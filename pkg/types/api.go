package types

// GenerateRequest is the payload accepted by POST /v1/generate and /v1/stream.
type GenerateRequest struct {
	// Conversation turns, oldest first.
	Messages []Message `json:"messages"`
	// Optional sampling overrides merged over server defaults.
	Params GenerateParams `json:"params,omitempty"`
}

// GenerateResponse wraps a unary completion result.
type GenerateResponse struct {
	Content string `json:"content"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// ProcessRunning reports whether the supervised OS process is alive.
	ProcessRunning bool `json:"process_running"`
	// HTTPStatus is the probe classification: running, initializing,
	// starting, or stopped.
	HTTPStatus string `json:"http_status"`
	// Message is a human-readable summary of the current state.
	Message string `json:"message"`
	// State is the supervisor lifecycle state.
	State string `json:"state"`
	// PID of the supervised process, when running.
	PID int `json:"pid,omitempty"`
	// Model metadata, when fetched after readiness.
	Model *ModelInfo `json:"model,omitempty"`
	// EstMemoryMB is a heuristic memory-usage estimate derived from model
	// metadata. Zero when metadata is unavailable.
	EstMemoryMB int `json:"est_memory_mb,omitempty"`
	// UptimeSeconds since the supervised process was launched.
	UptimeSeconds int64 `json:"uptime_seconds,omitempty"`
}
