// Package generate produces answers from assembled context through a
// chat completion model.
package generate

import (
	"context"
	"errors"
)

// Mode selects how the question is answered.
type Mode string

const (
	// ModeFullBook answers from chunks retrieved across the whole book.
	ModeFullBook Mode = "full_book"

	// ModeSelectedText answers only from a passage the reader selected.
	ModeSelectedText Mode = "selected_text"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFullBook || m == ModeSelectedText
}

// ErrEmptyPrompt indicates a generation request with no question.
var ErrEmptyPrompt = errors.New("generate: empty prompt")

// Answer is a generated response with its token accounting.
type Answer struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Request carries everything a provider needs to answer one question.
type Request struct {
	Question string
	Context  string
	Mode     Mode
}

// Provider generates an answer for a question given assembled context.
type Provider interface {
	// Generate answers the question. Implementations retry transient
	// failures; a returned error means the answer is unavailable.
	Generate(ctx context.Context, req Request) (Answer, error)
}
