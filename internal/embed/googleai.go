package embed

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/retry"
)

// geminiCharsPerToken is the rough ratio for Gemini embedding models.
const geminiCharsPerToken = 4

// GoogleAIProvider embeds text through the Genkit GoogleAI plugin.
// The plugin reads GEMINI_API_KEY from the environment.
type GoogleAIProvider struct {
	embedder  ai.Embedder
	model     string
	dimension int
	retryCfg  retry.Config
	logger    log.Logger

	inputTokens atomic.Int64
	requests    atomic.Int64
}

// NewGoogleAIProvider initializes Genkit with the GoogleAI plugin and
// returns a provider for the given embedding model. dimension must
// match the model output (768 for text-embedding-004).
func NewGoogleAIProvider(ctx context.Context, model string, dimension int, retryCfg retry.Config, logger log.Logger) (*GoogleAIProvider, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))

	return &GoogleAIProvider{
		embedder:  googlegenai.GoogleAIEmbedder(g, model),
		model:     model,
		dimension: dimension,
		retryCfg:  retryCfg,
		logger:    logger,
	}, nil
}

// Name implements Provider.
func (p *GoogleAIProvider) Name() string { return "googleai/" + p.model }

// Dimension implements Provider.
func (p *GoogleAIProvider) Dimension() int { return p.dimension }

// EstimateTokens implements Provider.
func (p *GoogleAIProvider) EstimateTokens(text string) int {
	return len(text) / geminiCharsPerToken
}

// Embed implements Provider.
func (p *GoogleAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Provider.
func (p *GoogleAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text at index %d", ErrEmptyInput, i)
		}
		docs[i] = ai.DocumentFromText(t, nil)
	}

	var resp *ai.EmbedResponse
	err := retry.Do(ctx, p.logger, p.retryCfg, "googleai embed", func(ctx context.Context) error {
		var err error
		resp, err = p.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) != p.dimension {
			return nil, fmt.Errorf("embedding dimension %d, expected %d", len(e.Embedding), p.dimension)
		}
		vectors[i] = e.Embedding
	}

	// The plugin does not report token usage; fall back to the estimate.
	tokens := 0
	for _, t := range texts {
		tokens += p.EstimateTokens(t)
	}
	p.inputTokens.Add(int64(tokens))
	p.requests.Add(1)

	return vectors, nil
}

// CostEstimate implements Provider. The free-tier Gemini embedding API
// has no per-token price, so cost stays zero and only tokens are tracked.
func (p *GoogleAIProvider) CostEstimate() Usage {
	return Usage{
		InputTokens: p.inputTokens.Load(),
		Requests:    p.requests.Load(),
	}
}

// ResetUsage implements Provider.
func (p *GoogleAIProvider) ResetUsage() {
	p.inputTokens.Store(0)
	p.requests.Store(0)
}
