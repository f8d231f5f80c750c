// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.bookrag/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: generation model, fallback model, embedder model and provider
//   - Storage: PostgreSQL connection for pgvector and the query log
//   - RAG: retrieval and validation tunables (top_k, similarity floor,
//     groundedness threshold, chunk target, selected-text cap)
//   - Observability: optional OTLP trace endpoint
//
// Sensitive values (passwords, API keys) are masked in MarshalJSON/String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTopK indicates top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidSimilarity indicates a similarity threshold is out of [0,1].
	ErrInvalidSimilarity = errors.New("invalid similarity threshold")

	// ErrInvalidChunkTarget indicates the chunk target token count is out of range.
	ErrInvalidChunkTarget = errors.New("invalid chunk target tokens")

	// ErrInvalidSelectedTextMax indicates the selected-text cap is out of range.
	ErrInvalidSelectedTextMax = errors.New("invalid selected text max chars")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

const (
	// DefaultEmbedderModel is the default OpenAI embedding model.
	// text-embedding-3-small outputs 1536 dimensions, matching the
	// vector column in db/migrations.
	DefaultEmbedderModel = "text-embedding-3-small"

	// DefaultEmbedderDimension matches DefaultEmbedderModel.
	DefaultEmbedderDimension = 1536

	// DefaultGenerationModel is the primary generation model.
	DefaultGenerationModel = "gpt-4o"

	// DefaultFallbackModel is tried once when the primary model's retry
	// budget is exhausted on a transient failure.
	DefaultFallbackModel = "gpt-4o-mini"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI provider and model configuration
	Provider        string  `mapstructure:"provider" json:"provider"` // "openai" (default), "googleai"
	GenerationModel string  `mapstructure:"generation_model" json:"generation_model"`
	FallbackModel   string  `mapstructure:"fallback_model" json:"fallback_model"` // empty disables model fallback
	EmbedderModel   string  `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDim     int     `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	MaxOutputTokens int     `mapstructure:"max_output_tokens" json:"max_output_tokens"`
	Temperature     float32 `mapstructure:"temperature" json:"temperature"`

	// RAG tunables. Defaults come from the original corpus experiments;
	// they are configuration, not invariants.
	TopK                 int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity        float32 `mapstructure:"min_similarity" json:"min_similarity"`
	GroundednessMin      float32 `mapstructure:"groundedness_min" json:"groundedness_min"`
	ChunkTargetTokens    int     `mapstructure:"chunk_target_tokens" json:"chunk_target_tokens"`
	SelectedTextMaxChars int     `mapstructure:"selected_text_max_chars" json:"selected_text_max_chars"`
	DefaultBookVersion   string  `mapstructure:"default_book_version" json:"default_book_version"`

	// Retry and timeout budget for external provider calls
	MaxRetries       int `mapstructure:"max_retries" json:"max_retries"`
	StageTimeoutSecs int `mapstructure:"stage_timeout_secs" json:"stage_timeout_secs"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability: OTLP/HTTP trace endpoint, empty disables tracing
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".bookrag")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("generation_model", DefaultGenerationModel)
	v.SetDefault("fallback_model", DefaultFallbackModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("max_output_tokens", 500)
	v.SetDefault("temperature", 0.3)

	v.SetDefault("top_k", 5)
	v.SetDefault("min_similarity", 0.5)
	v.SetDefault("groundedness_min", 0.75)
	v.SetDefault("chunk_target_tokens", 800)
	v.SetDefault("selected_text_max_chars", 12000)
	v.SetDefault("default_book_version", "v1.0")

	v.SetDefault("max_retries", 3)
	v.SetDefault("stage_timeout_secs", 30)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "bookrag")
	v.SetDefault("postgres_password", "bookrag_dev_password")
	v.SetDefault("postgres_db_name", "bookrag")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "bookrag")

	v.SetDefault("listen_addr", "127.0.0.1:8080")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys can't fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("provider", "BOOKRAG_PROVIDER")
	mustBind("generation_model", "BOOKRAG_GENERATION_MODEL")
	mustBind("embedder_model", "BOOKRAG_EMBEDDER_MODEL")
	mustBind("postgres_host", "BOOKRAG_POSTGRES_HOST")
	mustBind("postgres_port", "BOOKRAG_POSTGRES_PORT")
	mustBind("postgres_user", "BOOKRAG_POSTGRES_USER")
	mustBind("postgres_password", "BOOKRAG_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "BOOKRAG_POSTGRES_DB")
	mustBind("otlp_endpoint", "BOOKRAG_OTLP_ENDPOINT")
	mustBind("listen_addr", "BOOKRAG_LISTEN_ADDR")

	// NOTE: GEMINI_API_KEY is read directly by the Genkit GoogleAI plugin,
	// not via viper. Validation checks its presence when provider=googleai.
}

// DatabaseURL builds the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword,
		c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked; longer ones keep the first and last two characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
