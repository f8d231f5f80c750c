package embed

import (
	"strings"
	"testing"
)

func TestProviderTokenEstimates(t *testing.T) {
	p := &OpenAIProvider{}
	if got := p.EstimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("OpenAI EstimateTokens = %d, want 100", got)
	}
	if got := p.EstimateTokens(""); got != 0 {
		t.Errorf("OpenAI EstimateTokens(\"\") = %d, want 0", got)
	}

	g := &GoogleAIProvider{}
	if got := g.EstimateTokens(strings.Repeat("b", 200)); got != 50 {
		t.Errorf("GoogleAI EstimateTokens = %d, want 50", got)
	}
}

func TestOpenAIProviderRejectsEmptyInput(t *testing.T) {
	p := &OpenAIProvider{dimension: 1536}

	if _, err := p.Embed(t.Context(), ""); err == nil {
		t.Error("Embed(\"\") should fail")
	}
	if _, err := p.EmbedBatch(t.Context(), nil); err == nil {
		t.Error("EmbedBatch(nil) should fail")
	}
	if _, err := p.EmbedBatch(t.Context(), []string{"ok", ""}); err == nil {
		t.Error("EmbedBatch with empty element should fail")
	}
}

func TestOpenAIProviderUsageAccounting(t *testing.T) {
	p := &OpenAIProvider{}

	p.recordUsage(1_000_000)
	p.recordUsage(500_000)

	usage := p.CostEstimate()
	if usage.InputTokens != 1_500_000 {
		t.Errorf("InputTokens = %d, want 1500000", usage.InputTokens)
	}
	if usage.Requests != 2 {
		t.Errorf("Requests = %d, want 2", usage.Requests)
	}
	// 1.5M tokens at $0.02/1M is $0.03.
	if usage.EstimatedCostUSD < 0.0299 || usage.EstimatedCostUSD > 0.0301 {
		t.Errorf("EstimatedCostUSD = %v, want ~0.03", usage.EstimatedCostUSD)
	}

	p.ResetUsage()
	if got := p.CostEstimate(); got.InputTokens != 0 || got.Requests != 0 || got.EstimatedCostUSD != 0 {
		t.Errorf("usage not reset: %+v", got)
	}
}

func TestProviderNames(t *testing.T) {
	p := &OpenAIProvider{model: "text-embedding-3-small"}
	if got := p.Name(); got != "openai/text-embedding-3-small" {
		t.Errorf("Name = %q", got)
	}

	g := &GoogleAIProvider{model: "text-embedding-004"}
	if got := g.Name(); got != "googleai/text-embedding-004" {
		t.Errorf("Name = %q", got)
	}
}
