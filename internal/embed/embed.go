// Package embed turns text into fixed-dimension vectors through an AI
// provider, with retry, rate limiting, and usage accounting.
package embed

import (
	"context"
	"errors"
)

// ErrEmptyInput indicates an embedding request with no text.
var ErrEmptyInput = errors.New("embed: empty input")

// Usage accumulates token and cost accounting across embedding calls.
type Usage struct {
	InputTokens      int64   `json:"input_tokens"`
	Requests         int64   `json:"requests"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Provider produces embedding vectors for text.
//
// Implementations must return vectors of exactly Dimension() elements
// and must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider and model for logs and the query archive.
	Name() string

	// Dimension is the vector length this provider produces.
	Dimension() int

	// Embed embeds a single text. Empty text returns ErrEmptyInput.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order. The result has one vector per
	// input. An empty slice returns ErrEmptyInput.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// EstimateTokens estimates the token count of text using the
	// provider's characters-per-token ratio. Heuristic only; it never
	// calls the API.
	EstimateTokens(text string) int

	// CostEstimate reports accumulated usage since creation or the last
	// ResetUsage call.
	CostEstimate() Usage

	// ResetUsage zeroes the usage counters.
	ResetUsage()
}
