package config

import (
	"fmt"
	"os"
)

// Validate checks the configuration and fails fast with a sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required when provider is %q", ErrMissingAPIKey, ProviderOpenAI)
		}
	case ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required when provider is %q", ErrMissingAPIKey, ProviderGoogleAI)
		}
	default:
		return fmt.Errorf("%w: %q (must be %q or %q)", ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderGoogleAI)
	}

	if c.GenerationModel == "" {
		return fmt.Errorf("%w: generation_model is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidTopK, c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity %v", ErrInvalidSimilarity, c.MinSimilarity)
	}
	if c.GroundednessMin < 0 || c.GroundednessMin > 1 {
		return fmt.Errorf("%w: groundedness_min %v", ErrInvalidSimilarity, c.GroundednessMin)
	}
	if c.ChunkTargetTokens < 50 || c.ChunkTargetTokens > 8000 {
		return fmt.Errorf("%w: %d (must be 50-8000)", ErrInvalidChunkTarget, c.ChunkTargetTokens)
	}
	if c.SelectedTextMaxChars < 100 {
		return fmt.Errorf("%w: %d (must be >= 100)", ErrInvalidSelectedTextMax, c.SelectedTextMaxChars)
	}

	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	return nil
}
