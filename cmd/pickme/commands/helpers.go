package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fahammohmd/pickme-go/internal/embedder"
	"github.com/fahammohmd/pickme-go/internal/engine"
	"github.com/fahammohmd/pickme-go/internal/index"
	"github.com/fahammohmd/pickme-go/internal/provider"
	"github.com/fahammohmd/pickme-go/internal/rag"
)

// Default corpus layout: documents in ./data, persisted index in ./storage.
const (
	defaultDocumentsDir = "data"
	defaultIndexDir     = "storage"
	defaultChunkSize    = 512
	defaultChunkOverlap = 20
	defaultTopK         = 5
)

// indexConfigFromEnv assembles the index manager configuration from the
// resolved environment (YAML values were applied as env vars by config.Load).
func indexConfigFromEnv(embeddingModel string, forceRebuild bool, log *slog.Logger) *index.Config {
	return &index.Config{
		DocumentsRoot:  envOrDefault("PICKME_DOCUMENTS_DIR", defaultDocumentsDir),
		IndexDir:       envOrDefault("PICKME_INDEX_DIR", defaultIndexDir),
		ChunkSize:      envInt("PICKME_CHUNK_SIZE", defaultChunkSize),
		ChunkOverlap:   envInt("PICKME_CHUNK_OVERLAP", defaultChunkOverlap),
		BatchSize:      envInt("PICKME_EMBED_BATCH_SIZE", 0),
		EmbeddingModel: embeddingModel,
		ForceRebuild:   forceRebuild,
		Logger:         log,
	}
}

// openIndex constructs the embedder and index manager, then opens the index:
// reuse when the corpus fingerprint matches the persisted record, rebuild
// otherwise. Blocks until the index is READY or the open fails.
func openIndex(ctx context.Context, forceRebuild bool, log *slog.Logger) (*index.Manager, rag.Embedder, error) {
	embCfg := embedder.ConfigFromEnv()
	emb, err := embedder.New(embCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	mgr, err := index.NewManager(emb, indexConfigFromEnv(embCfg.Model, forceRebuild, log))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise index manager: %w", err)
	}
	if err := mgr.Open(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	return mgr, emb, nil
}

// buildEngine wires the full ask path: embedder + ready index → retriever,
// provider → chat model, both → query engine.
func buildEngine(ctx context.Context, mgr *index.Manager, emb rag.Embedder) (*engine.Engine, error) {
	idx, err := mgr.Index()
	if err != nil {
		return nil, fmt.Errorf("index unavailable: %w", err)
	}

	retriever, err := rag.NewRetriever(emb, idx, envInt("PICKME_TOP_K", defaultTopK))
	if err != nil {
		return nil, fmt.Errorf("failed to initialise retriever: %w", err)
	}

	chatModel, err := provider.New(ctx, provider.ConfigFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}

	eng, err := engine.New(&engine.Config{
		ChatModel: chatModel,
		Retriever: retriever,
		TopK:      envInt("PICKME_TOP_K", defaultTopK),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise engine: %w", err)
	}
	return eng, nil
}

// envOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
