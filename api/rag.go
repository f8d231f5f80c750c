package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pageoak/bookrag/internal/generate"
	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/pipeline"
)

// maxBodyBytes caps request bodies. Book chapters are text; anything
// bigger than this is a mistake.
const maxBodyBytes = 4 << 20

// Orchestrator is the slice of the pipeline the HTTP handlers need.
type Orchestrator interface {
	Ingest(ctx context.Context, req pipeline.IngestRequest) (pipeline.IngestResult, error)
	Query(ctx context.Context, req pipeline.QueryRequest) (pipeline.QueryResult, error)
}

// RAGHandler handles the ingest and query endpoints.
type RAGHandler struct {
	orchestrator Orchestrator
	logger       log.Logger
}

// NewRAGHandler creates a new RAG handler.
func NewRAGHandler(orchestrator Orchestrator, logger log.Logger) *RAGHandler {
	return &RAGHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers RAG routes on the given mux.
func (h *RAGHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.ingest)
	mux.HandleFunc("POST /api/query", h.query)
}

// ingestRequest is the /api/ingest payload.
type ingestRequest struct {
	Content     string `json:"content"`
	Chapter     string `json:"chapter,omitempty"`
	Section     string `json:"section,omitempty"`
	BookVersion string `json:"book_version,omitempty"`
}

func (h *RAGHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.orchestrator.Ingest(r.Context(), pipeline.IngestRequest{
		Content:     req.Content,
		Chapter:     req.Chapter,
		Section:     req.Section,
		BookVersion: req.BookVersion,
	})
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyContent) {
			writeError(w, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
		h.logger.Error("ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "ingest failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryRequest is the /api/query payload.
type queryRequest struct {
	Question     string `json:"question"`
	Mode         string `json:"mode,omitempty"`
	SelectedText string `json:"selected_text,omitempty"`
	BookVersion  string `json:"book_version,omitempty"`
	Chapter      string `json:"chapter,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
}

// query answers a question. Only malformed input yields an error
// status; pipeline failures surface as fallback answers with 200, so
// clients always get an answer envelope.
func (h *RAGHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.orchestrator.Query(r.Context(), pipeline.QueryRequest{
		Question:     req.Question,
		Mode:         generate.Mode(req.Mode),
		SelectedText: req.SelectedText,
		BookVersion:  req.BookVersion,
		Chapter:      req.Chapter,
		TopK:         req.TopK,
	})
	if err != nil {
		// Query only fails on input validation.
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", "malformed JSON body")
		return false
	}
	return true
}
