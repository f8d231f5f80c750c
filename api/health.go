package api

import (
	"context"
	"net/http"

	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// IndexInfo is the slice of the vector index the readiness probe needs.
type IndexInfo interface {
	CollectionInfo(ctx context.Context) (vecstore.Info, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	index  IndexInfo
	logger log.Logger
}

// NewHealthHandler creates a new health handler.
// index is used for readiness checks; reaching it proves the storage
// backend is reachable.
func NewHealthHandler(index IndexInfo, logger log.Logger) *HealthHandler {
	return &HealthHandler{index: index, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness is a liveness probe endpoint.
// Returns 200 OK if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readinessResponse is the /ready payload.
type readinessResponse struct {
	Status string        `json:"status"`
	Index  vecstore.Info `json:"index"`
}

// readiness is a readiness probe endpoint.
// Returns 200 OK with index stats if the storage backend responds.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.index == nil {
		writeError(w, http.StatusServiceUnavailable, "not ready", "index not configured")
		return
	}
	info, err := h.index.CollectionInfo(r.Context())
	if err != nil {
		h.logger.Error("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "not ready", "storage backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, readinessResponse{Status: "ready", Index: info})
}
