// Package assemble formats retrieved chunks into the context block
// given to the generation model.
package assemble

import (
	"fmt"
	"strings"

	"github.com/pageoak/bookrag/internal/retrieve"
)

// NoContextSentinel is the context block used when retrieval finds
// nothing. Kept exported so callers can detect the empty case.
const NoContextSentinel = "No relevant context found in the knowledge base."

// Context formats chunks into a numbered source list, preserving
// retrieval order. Each chunk gets a header naming its location in the
// book and its relevance as a percentage.
func Context(chunks []retrieve.Chunk) string {
	if len(chunks) == 0 {
		return NoContextSentinel
	}

	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[Source %d: %s (relevance: %.0f%%)]\n", i+1, location(c), c.Similarity*100))
		sb.WriteString(c.Content)
	}
	return sb.String()
}

// location joins the non-empty parts of a chunk's position in the book.
func location(c retrieve.Chunk) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.Chapter, c.Section, c.Subsection} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "unknown location"
	}
	return strings.Join(parts, " > ")
}
