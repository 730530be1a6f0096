package embedder

import "testing"

func TestConfigFromEnv_DefaultsToOllama(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_ENDPOINT", "")
	t.Setenv("OLLAMA_HOST", "")

	cfg := ConfigFromEnv()
	if cfg.Provider != "ollama" {
		t.Errorf("expected ollama default, got %q", cfg.Provider)
	}
	if cfg.Model != defaultOllamaModel {
		t.Errorf("expected default model %q, got %q", defaultOllamaModel, cfg.Model)
	}
	if cfg.Endpoint != "http://localhost:11434" {
		t.Errorf("unexpected endpoint %q", cfg.Endpoint)
	}
}

func TestConfigFromEnv_InheritsModelProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("EMBEDDING_MODEL", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := ConfigFromEnv()
	if cfg.Provider != "openai" {
		t.Errorf("expected inherited openai provider, got %q", cfg.Provider)
	}
	if cfg.Model != defaultOpenAIModel {
		t.Errorf("expected default model %q, got %q", defaultOpenAIModel, cfg.Model)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("expected API key inherited from OPENAI_API_KEY")
	}
}

func TestConfigFromEnv_ExplicitOverrides(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-3-large")
	t.Setenv("EMBEDDING_ENDPOINT", "https://example.invalid/v1")
	t.Setenv("EMBEDDING_API_KEY", "sk-override")
	t.Setenv("EMBEDDING_DIMENSIONS", "256")

	cfg := ConfigFromEnv()
	if cfg.Model != "text-embedding-3-large" {
		t.Errorf("unexpected model %q", cfg.Model)
	}
	if cfg.Endpoint != "https://example.invalid/v1" {
		t.Errorf("unexpected endpoint %q", cfg.Endpoint)
	}
	if cfg.APIKey != "sk-override" {
		t.Errorf("unexpected API key %q", cfg.APIKey)
	}
	if cfg.Dimensions != 256 {
		t.Errorf("unexpected dimensions %d", cfg.Dimensions)
	}
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{Provider: "openai", Model: defaultOpenAIModel}); err == nil {
		t.Error("expected error for openai without API key")
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{Provider: "watsonx"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
