package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pageoak/bookrag/db"
	"github.com/pageoak/bookrag/internal/archive"
	"github.com/pageoak/bookrag/internal/chunk"
	"github.com/pageoak/bookrag/internal/config"
	"github.com/pageoak/bookrag/internal/database"
	"github.com/pageoak/bookrag/internal/embed"
	"github.com/pageoak/bookrag/internal/generate"
	"github.com/pageoak/bookrag/internal/log"
	"github.com/pageoak/bookrag/internal/pipeline"
	"github.com/pageoak/bookrag/internal/retrieve"
	"github.com/pageoak/bookrag/internal/retry"
	"github.com/pageoak/bookrag/internal/validate"
	"github.com/pageoak/bookrag/internal/vecstore"
)

// application bundles everything a command needs after setup.
type application struct {
	cfg          *config.Config
	pool         *pgxpool.Pool
	index        vecstore.Index
	orchestrator *pipeline.Orchestrator
	logger       log.Logger
}

// close releases the database pool.
func (a *application) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// setup loads configuration, migrates and connects the database, and
// wires the full pipeline.
func setup(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	app, err := build(ctx, cfg, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

// build wires the pipeline over an open pool.
func build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger log.Logger) (*application, error) {
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.MaxRetries

	embedder, err := buildEmbedder(ctx, cfg, retryCfg, logger)
	if err != nil {
		return nil, err
	}

	index := vecstore.NewPgxIndex(pool, logger.With("component", "vecstore"))
	retriever := retrieve.New(embedder, index, cfg.TopK, cfg.MinSimilarity,
		logger.With("component", "retrieve"))
	generator := generate.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.GenerationModel, cfg.FallbackModel,
		generate.Options{
			Temperature: float64(cfg.Temperature),
			MaxTokens:   int64(cfg.MaxOutputTokens),
			RetryConfig: retryCfg,
		},
		logger.With("component", "generate"))
	validator := validate.New(embedder, cfg.GroundednessMin, logger.With("component", "validate"))
	archiver := archive.NewStore(pool, logger.With("component", "archive"))

	orchestrator := pipeline.New(
		chunk.NewSplitter(cfg.ChunkTargetTokens),
		embedder,
		index,
		retriever,
		generator,
		validator,
		archiver,
		pipeline.Config{
			DefaultBookVersion:   cfg.DefaultBookVersion,
			SelectedTextMaxChars: cfg.SelectedTextMaxChars,
			StageTimeout:         time.Duration(cfg.StageTimeoutSecs) * time.Second,
		},
		logger.With("component", "pipeline"),
	)

	return &application{
		cfg:          cfg,
		pool:         pool,
		index:        index,
		orchestrator: orchestrator,
		logger:       logger,
	}, nil
}

// buildEmbedder selects the embedding provider from configuration.
func buildEmbedder(ctx context.Context, cfg *config.Config, retryCfg retry.Config, logger log.Logger) (embed.Provider, error) {
	embedLogger := logger.With("component", "embed")
	switch cfg.Provider {
	case config.ProviderGoogleAI:
		return embed.NewGoogleAIProvider(ctx, cfg.EmbedderModel, cfg.EmbedderDim, retryCfg, embedLogger)
	case config.ProviderOpenAI:
		return embed.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbedderModel, cfg.EmbedderDim, retryCfg, embedLogger), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
