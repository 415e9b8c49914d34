package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/internal/manager"
	"inferd/internal/supervisor"
	"inferd/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusForError maps well-known service errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case manager.IsNotRunning(err), manager.IsServerInitializing(err), manager.IsProbeUnavailable(err):
		return http.StatusServiceUnavailable
	case manager.IsInitInProgress(err):
		return http.StatusConflict
	case manager.IsCooldown(err):
		return http.StatusTooManyRequests
	case supervisor.IsBinaryNotFound(err), supervisor.IsModelNotFound(err):
		return http.StatusFailedDependency
	case supervisor.IsStartupTimeout(err), supervisor.IsProcessExited(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
