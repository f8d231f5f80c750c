package generate

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/retry"
)

// OpenAIProvider generates answers through the OpenAI chat completions
// API. When the primary model exhausts its retry budget on a transient
// failure, the fallback model is tried once before giving up.
type OpenAIProvider struct {
	client        openai.Client
	model         string
	fallbackModel string // empty disables fallback
	temperature   float64
	maxTokens     int64
	retryCfg      retry.Config
	logger        log.Logger
}

// Options tunes an OpenAIProvider beyond its required models.
type Options struct {
	Temperature float64
	MaxTokens   int64
	RetryConfig retry.Config
}

// NewOpenAIProvider creates a generation provider. fallbackModel may be
// empty to disable model fallback.
func NewOpenAIProvider(apiKey, model, fallbackModel string, opts Options, logger log.Logger) *OpenAIProvider {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	return &OpenAIProvider{
		client:        openai.NewClient(option.WithAPIKey(apiKey)),
		model:         model,
		fallbackModel: fallbackModel,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
		retryCfg:      opts.RetryConfig,
		logger:        logger,
	}
}

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (Answer, error) {
	if req.Question == "" {
		return Answer{}, ErrEmptyPrompt
	}
	if !req.Mode.Valid() {
		return Answer{}, fmt.Errorf("unknown generation mode %q", req.Mode)
	}

	answer, err := p.complete(ctx, p.model, req)
	if err == nil {
		return answer, nil
	}
	if p.fallbackModel == "" || !retry.Retryable(err) {
		return Answer{}, err
	}

	p.logger.Warn("primary model failed, trying fallback",
		"model", p.model,
		"fallback", p.fallbackModel,
		"error", err,
	)
	answer, fbErr := p.complete(ctx, p.fallbackModel, req)
	if fbErr != nil {
		// Report the primary failure; the fallback one goes to the log.
		p.logger.Error("fallback model also failed", "model", p.fallbackModel, "error", fbErr)
		return Answer{}, err
	}
	return answer, nil
}

// complete runs one retried chat completion against a specific model.
func (p *OpenAIProvider) complete(ctx context.Context, model string, req Request) (Answer, error) {
	var answer Answer

	err := retry.Do(ctx, p.logger, p.retryCfg, "chat completion", func(ctx context.Context) error {
		chat, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt(req.Mode)),
				openai.UserMessage(userPrompt(req)),
			},
			Temperature: openai.Float(p.temperature),
			MaxTokens:   openai.Int(p.maxTokens),
		})
		if err != nil {
			return err
		}
		if len(chat.Choices) == 0 {
			return fmt.Errorf("model %s returned no choices", model)
		}

		answer = Answer{
			Text:         chat.Choices[0].Message.Content,
			Model:        model,
			InputTokens:  chat.Usage.PromptTokens,
			OutputTokens: chat.Usage.CompletionTokens,
		}
		return nil
	})
	if err != nil {
		return Answer{}, err
	}
	return answer, nil
}
