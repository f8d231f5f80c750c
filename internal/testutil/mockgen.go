package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/pageoak/bookrag/internal/generate"
)

// MockGenerator provides deterministic generation responses for testing.
// It matches the question against registered patterns and returns the
// corresponding response. Patterns are checked in registration order;
// first match wins, the fallback covers the rest.
//
// Thread-safe for concurrent use.
type MockGenerator struct {
	mu       sync.Mutex
	rules    []genRule
	fallback string
	fail     error
	calls    []generate.Request
}

type genRule struct {
	pattern  string // substring match in the question, case-insensitive
	response string
}

// NewMockGenerator creates a mock with the given fallback response.
func NewMockGenerator(fallback string) *MockGenerator {
	return &MockGenerator{fallback: fallback}
}

// AddResponse registers a pattern-response pair.
func (m *MockGenerator) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, genRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// Fail makes all subsequent calls return err. Pass nil to recover.
func (m *MockGenerator) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Calls returns a copy of all recorded requests.
func (m *MockGenerator) Calls() []generate.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]generate.Request, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// Generate implements generate.Provider.
func (m *MockGenerator) Generate(_ context.Context, req generate.Request) (generate.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if m.fail != nil {
		return generate.Answer{}, m.fail
	}

	text := m.fallback
	lower := strings.ToLower(req.Question)
	for _, rule := range m.rules {
		if strings.Contains(lower, rule.pattern) {
			text = rule.response
			break
		}
	}

	return generate.Answer{
		Text:         text,
		Model:        "mock/test-model",
		InputTokens:  int64(len(req.Question)+len(req.Context)) / 4,
		OutputTokens: int64(len(text)) / 4,
	}, nil
}
