// Package validate checks that generated answers stay grounded in
// their source text.
//
// Groundedness is the cosine similarity between the answer's embedding
// and the source text's embedding. Validation fails closed: any error
// while embedding reports the answer as ungrounded with a zero score.
package validate

import (
	"context"
	"math"

	"github.com/pageoak/bookrag/internal/embed"
	"github.com/pageoak/bookrag/internal/log"
)

// Validator scores answers against the text they were generated from.
type Validator struct {
	embedder  embed.Provider
	threshold float32
	logger    log.Logger
}

// New creates a Validator. threshold is the minimum cosine similarity
// for an answer to count as grounded.
func New(embedder embed.Provider, threshold float32, logger log.Logger) *Validator {
	return &Validator{embedder: embedder, threshold: threshold, logger: logger}
}

// Threshold returns the configured groundedness minimum.
func (v *Validator) Threshold() float32 { return v.threshold }

// IsGrounded reports whether answer is semantically supported by source,
// along with the similarity score. Errors fail closed as (false, 0).
func (v *Validator) IsGrounded(ctx context.Context, answer, source string) (bool, float32) {
	if answer == "" || source == "" {
		return false, 0
	}

	vectors, err := v.embedder.EmbedBatch(ctx, []string{answer, source})
	if err != nil {
		v.logger.Warn("groundedness check failed, treating answer as ungrounded", "error", err)
		return false, 0
	}

	score := Cosine(vectors[0], vectors[1])
	return score >= v.threshold, score
}

// Cosine computes cosine similarity between equal-length vectors,
// clamped to [0,1]. Mismatched lengths and zero vectors yield 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	score := float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
