package embed

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/retry"
)

// costPerMillionTokens is the price of text-embedding-3-small.
// Other models reuse this as an approximation; usage is an estimate
// either way.
const costPerMillionTokens = 0.02

// openaiCharsPerToken is the rough ratio for OpenAI embedding models.
const openaiCharsPerToken = 4

// maxBatchSize bounds how many inputs go into one API request.
const maxBatchSize = 100

// OpenAIProvider embeds text through the OpenAI embeddings API.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	limiter   *rate.Limiter
	retryCfg  retry.Config
	logger    log.Logger

	inputTokens atomic.Int64
	requests    atomic.Int64
	// cost in micro-dollars so it fits an atomic integer
	costMicroUSD atomic.Int64
}

// NewOpenAIProvider creates an embedding provider for the given model.
// dimension must match what the model outputs.
func NewOpenAIProvider(apiKey, model string, dimension int, retryCfg retry.Config, logger log.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		dimension: dimension,
		// OpenAI embedding tier limits are generous; this guards bursts
		// during bulk ingestion, not steady-state traffic.
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
		retryCfg: retryCfg,
		logger:   logger,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai/" + p.model }

// Dimension implements Provider.
func (p *OpenAIProvider) Dimension() int { return p.dimension }

// EstimateTokens implements Provider.
func (p *OpenAIProvider) EstimateTokens(text string) int {
	return len(text) / openaiCharsPerToken
}

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Provider. Large batches are split into API
// requests of at most maxBatchSize inputs each.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for i, t := range texts {
		if t == "" {
			return nil, fmt.Errorf("%w: text at index %d", ErrEmptyInput, i)
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := min(start+maxBatchSize, len(texts))
		batch, err := p.embedOnce(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// embedOnce performs a single rate-limited, retried API call.
func (p *OpenAIProvider) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	err := retry.Do(ctx, p.logger, p.retryCfg, "openai embed", func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Model: p.model,
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts))
		}

		vectors = make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for j, f := range d.Embedding {
				vec[j] = float32(f)
			}
			if len(vec) != p.dimension {
				return fmt.Errorf("embedding dimension %d, expected %d", len(vec), p.dimension)
			}
			vectors[d.Index] = vec
		}

		p.recordUsage(resp.Usage.PromptTokens)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *OpenAIProvider) recordUsage(promptTokens int64) {
	p.inputTokens.Add(promptTokens)
	p.requests.Add(1)
	micro := int64(math.Round(float64(promptTokens) * costPerMillionTokens))
	p.costMicroUSD.Add(micro)
}

// CostEstimate implements Provider.
func (p *OpenAIProvider) CostEstimate() Usage {
	return Usage{
		InputTokens:      p.inputTokens.Load(),
		Requests:         p.requests.Load(),
		EstimatedCostUSD: float64(p.costMicroUSD.Load()) / 1e6,
	}
}

// ResetUsage implements Provider.
func (p *OpenAIProvider) ResetUsage() {
	p.inputTokens.Store(0)
	p.requests.Store(0)
	p.costMicroUSD.Store(0)
}
