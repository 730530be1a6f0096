// Package embedder provides concrete rag.Embedder implementations and a
// factory that selects one from environment configuration. Supported
// backends: Ollama (local, no key) and OpenAI-compatible endpoints.
package embedder

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fahammohmd/pickme-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
)

// Config holds the resolved embedding backend configuration. Model is also
// folded into the corpus fingerprint — switching models invalidates the
// persisted index.
type Config struct {
	// Provider selects the backend: ollama or openai.
	Provider string
	// Model is the embedding model name.
	Model string
	// Endpoint is the backend base URL. For ollama this is the server host;
	// for openai it overrides the default API endpoint (Azure/compatible).
	Endpoint string
	// APIKey is the credential for hosted backends. Unused for ollama.
	APIKey string
	// Dimensions optionally truncates OpenAI embeddings to this size.
	Dimensions int
}

// ConfigFromEnv resolves the embedding configuration from environment
// variables using cascading defaults that inherit from the chat provider
// when embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER — if unset, inherits MODEL_PROVIDER (default: ollama)
//  2. EMBEDDING_MODEL — overrides the default model for the resolved backend
//  3. EMBEDDING_ENDPOINT — overrides the backend endpoint
//  4. EMBEDDING_API_KEY — falls back to OPENAI_API_KEY for the openai backend
//  5. EMBEDDING_DIMENSIONS — optional output dimension override (openai only)
func ConfigFromEnv() *Config {
	provider := os.Getenv("EMBEDDING_PROVIDER")
	if provider == "" {
		provider = getEnvOrDefault("MODEL_PROVIDER", "ollama")
	}

	cfg := &Config{
		Provider:   provider,
		Model:      os.Getenv("EMBEDDING_MODEL"),
		Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
		APIKey:     os.Getenv("EMBEDDING_API_KEY"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
	}

	switch provider {
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = defaultOllamaModel
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
	case "openai":
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	return cfg
}

// New constructs a rag.Embedder from an explicit Config.
func New(cfg *Config) (rag.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  cfg.Endpoint,
			Model: cfg.Model,
		}), nil

	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q — valid values: ollama, openai", cfg.Provider)
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
