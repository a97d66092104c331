// Package app wires configuration into a ready rag.Service. Both binaries
// share it so the API and the bulk importer index documents the same way.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/josinaldojr/askdocs-rag/internal/config"
	"github.com/josinaldojr/askdocs-rag/internal/db"
	"github.com/josinaldojr/askdocs-rag/internal/extract"
	"github.com/josinaldojr/askdocs-rag/internal/filestore"
	"github.com/josinaldojr/askdocs-rag/internal/index"
	"github.com/josinaldojr/askdocs-rag/internal/llm"
	"github.com/josinaldojr/askdocs-rag/internal/rag"
	"github.com/josinaldojr/askdocs-rag/internal/textsplit"
)

type App struct {
	Service   *rag.Service
	Extractor *extract.Registry

	closers []func() error
}

// Close releases backend connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Extractor: extract.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	client, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model := client.EmbedModel()

	emb, completer := guardProvider(client, cfg, log)

	if cfg.RedisURL != "" {
		rdb, err := llm.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		emb = llm.NewCachedEmbedder(emb, rdb, llm.CacheConfig{
			Provider:  cfg.LLMProvider,
			Model:     model,
			Dimension: cfg.EmbedDim,
			TTL:       cfg.CacheTTL,
		}, log)
		log.Info("embedding cache enabled")
	}

	store, err := a.newIndex(ctx, cfg, model, log)
	if err != nil {
		return nil, err
	}

	splitter, err := textsplit.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	params := rag.DefaultParams()
	params.MaxTokens = cfg.MaxTokens

	a.Service = rag.NewService(rag.Deps{
		Files:     filestore.New(cfg.FilesDir),
		Extractor: a.Extractor,
		Chunker:   splitter,
		Embedder:  emb,
		Index:     store,
		Generator: rag.NewGenerator(completer, params, log),
	}, cfg.TopK, log)

	log.Info("rag service ready",
		zap.String("provider", cfg.LLMProvider),
		zap.String("embed_model", model),
		zap.String("index_backend", cfg.IndexBackend),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("chunk_overlap", cfg.ChunkOverlap),
		zap.Int("top_k", cfg.TopK),
	)
	return a, nil
}

// providerClient is one backend serving both embeddings and chat.
type providerClient interface {
	rag.Embedder
	rag.ChatCompleter
	EmbedModel() string
}

// guardProvider gives embeddings and chat their own breaker and limiter, so
// a failing embedding endpoint does not take /chat down with it.
func guardProvider(client providerClient, cfg *config.Config, log *zap.Logger) (rag.Embedder, rag.ChatCompleter) {
	embedGuard := llm.NewGuard(llm.GuardConfig{Name: cfg.LLMProvider + "-embed", RPS: cfg.LLMRPS, Burst: cfg.LLMBurst}, log)
	chatGuard := llm.NewGuard(llm.GuardConfig{Name: cfg.LLMProvider + "-chat", RPS: cfg.LLMRPS, Burst: cfg.LLMBurst}, log)
	return llm.NewGuardedEmbedder(client, embedGuard), llm.NewGuardedCompleter(client, chatGuard)
}

func newProvider(ctx context.Context, cfg *config.Config) (providerClient, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			ChatModel:  cfg.OpenAI.ChatModel,
			EmbedModel: cfg.OpenAI.EmbedModel,
			Dimension:  cfg.EmbedDim,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return c, nil
	case config.ProviderAzure:
		c, err := llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:        cfg.Azure.APIKey,
			ChatModel:     cfg.Azure.ChatDeployment,
			EmbedModel:    cfg.Azure.EmbedDeployment,
			Dimension:     cfg.EmbedDim,
			Azure:         true,
			AzureEndpoint: cfg.Azure.Endpoint,
			APIVersion:    cfg.Azure.APIVersion,
		})
		if err != nil {
			return nil, fmt.Errorf("init azure openai client: %w", err)
		}
		return c, nil
	default:
		c, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:     cfg.Gemini.APIKey,
			BaseURL:    cfg.Gemini.BaseURL,
			ChatModel:  cfg.Gemini.ChatModel,
			EmbedModel: cfg.Gemini.EmbedModel,
			Dimension:  cfg.EmbedDim,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		return c, nil
	}
}

func (a *App) newIndex(ctx context.Context, cfg *config.Config, model string, log *zap.Logger) (rag.IndexStore, error) {
	switch cfg.IndexBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		store := index.NewPgStore(pool, model, log)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendQdrant:
		store, err := index.NewQdrantStore(index.QdrantConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			Prefix: cfg.Qdrant.Prefix,
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return index.NewFileStore(cfg.IndexDir, model, log), nil
	}
}
