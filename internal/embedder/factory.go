package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables read when Config leaves a field empty
const (
	EnvOllamaHost    = "OLLAMA_HOST"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	Model     string
	BaseURL   string // Ollama host or OpenAI-compatible base URL
	APIKey    string
	CacheSize int // In-memory LRU entries; 0 disables the LRU
	Timeout   time.Duration
}

// modelCatalog lists the models offered for each provider. The first entry
// is the default.
var modelCatalog = map[string][]string{
	ProviderOllama: {"all-minilm", "mxbai-embed-large", "nomic-embed-text"},
	ProviderOpenAI: {"text-embedding-3-small", "text-embedding-3-large", "text-embedding-ada-002"},
	ProviderLocal:  {DefaultLocalModel},
}

// Providers returns the supported provider names.
func Providers() []string {
	return []string{ProviderOllama, ProviderOpenAI, ProviderLocal}
}

// Models returns the models known for provider.
func Models(provider string) ([]string, error) {
	models, ok := modelCatalog[strings.ToLower(provider)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
	}
	out := make([]string, len(models))
	copy(out, models)
	return out, nil
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	models, ok := modelCatalog[strings.ToLower(provider)]
	if !ok {
		return ""
	}
	return models[0]
}

// New creates an embedder with explicit configuration. Empty connection
// fields fall back to the provider's environment variables.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOllama, "":
		host := cfg.BaseURL
		if host == "" {
			host = os.Getenv(EnvOllamaHost)
		}
		return NewOllamaProvider(host, cfg.Model, cfg.Timeout, cache)
	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv(EnvOpenAIAPIKey)
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = os.Getenv(EnvOpenAIBaseURL)
		}
		return NewOpenAIProvider(apiKey, baseURL, cfg.Model, cfg.Timeout, cache)
	case ProviderLocal:
		if cfg.Model != "" && cfg.Model != DefaultLocalModel {
			return nil, fmt.Errorf("%w: local provider has no model %s", ErrUnsupportedModel, cfg.Model)
		}
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
