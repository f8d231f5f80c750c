package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// writeJSON marshals data before touching the ResponseWriter, so an
// encoding failure still produces a clean 500 instead of a truncated
// body behind an already-sent status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err, "status", status)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		// Usually the client going away mid-response.
		slog.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse is the JSON envelope for error statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}
