package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Provider configuration
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultOllamaModel = "all-minilm"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "feature-hash"

	DefaultOllamaHost = "http://localhost:11434"

	// Dimensions
	LocalDimension = 384

	// Batch limits. MaxBatchSize applies to embedders that do not implement
	// BatchLimiter. Ollama's /api/embed takes any number of inputs.
	MaxBatchSize       = 100
	OpenAIMaxBatchSize = 2048

	DefaultCacheSize = 10000
	DefaultTimeout   = 120 * time.Second

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// knownDimensions maps models with a fixed output size to that size.
var knownDimensions = map[string]int{
	"all-minilm":             384,
	"mxbai-embed-large":      1024,
	"nomic-embed-text":       768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	DefaultLocalModel:        LocalDimension,
}

// OllamaProvider implements Embedder against an Ollama server's /api/embed
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	cache      *Cache
	retry      RetryConfig
	dimension  atomic.Int64
}

// NewOllamaProvider creates an Ollama embedder. Empty host and model use
// DefaultOllamaHost and DefaultOllamaModel.
func NewOllamaProvider(host, model string, timeout time.Duration, cache *Cache) (*OllamaProvider, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	baseURL, err := normalizeHost(host)
	if err != nil {
		return nil, err
	}

	p := &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: cache,
		retry: DefaultRetryConfig(),
	}
	p.dimension.Store(int64(knownDimensions[model]))
	return p, nil
}

// normalizeHost accepts the forms OLLAMA_HOST is commonly set to
// ("host:port", "http://host:port/") and returns a base URL.
func normalizeHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return DefaultOllamaHost, nil
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		return "", fmt.Errorf("%w: unsupported ollama host %q", ErrInvalidInput, host)
	}
	return strings.TrimRight(host, "/"), nil
}

func (o *OllamaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, o, req)
}

func (o *OllamaProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return generateCached(ctx, o.cache, ProviderOllama, o.model, o.BatchLimit(), req, o.fetch)
}

// BatchLimit is 0: a whole file goes to Ollama in one request.
func (o *OllamaProvider) BatchLimit() int {
	return 0
}

func (o *OllamaProvider) fetch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors, err := retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
		return o.callAPI(ctx, texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: %w", ErrProviderFailed, err)
	}
	if len(vectors) > 0 {
		o.dimension.Store(int64(len(vectors[0])))
	}
	return vectors, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": model,
		"input": texts,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if !retryableStatus(resp.StatusCode) {
			return nil, permanent(err)
		}
		return nil, err
	}

	var apiResp struct {
		Model      string      `json:"model"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return apiResp.Embeddings, nil
}

func (o *OllamaProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API or any
// server compatible with it
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	cache     *Cache
	retry     RetryConfig
	dimension atomic.Int64
}

// NewOpenAIProvider creates an OpenAI embedder. An API key is required
// unless baseURL points at a compatible server.
func NewOpenAIProvider(apiKey, baseURL, model string, timeout time.Duration, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	p := &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		cache:  cache,
		retry:  DefaultRetryConfig(),
	}
	p.dimension.Store(int64(knownDimensions[model]))
	return p, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, o, req)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return generateCached(ctx, o.cache, ProviderOpenAI, o.model, o.BatchLimit(), req, o.fetch)
}

// BatchLimit is the embeddings endpoint's maximum inputs per request.
func (o *OpenAIProvider) BatchLimit() int {
	return OpenAIMaxBatchSize
}

func (o *OpenAIProvider) fetch(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors, err := retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
		return o.callAPI(ctx, texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %w", ErrProviderFailed, err)
	}
	if len(vectors) > 0 {
		o.dimension.Store(int64(len(vectors[0])))
	}
	return vectors, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.HTTPStatusCode) {
			return nil, permanent(err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && !retryableStatus(reqErr.HTTPStatusCode) {
			return nil, permanent(err)
		}
		return nil, err
	}

	// Results carry their input index; servers are not required to keep order.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, permanent(fmt.Errorf("embedding index %d out of range", data.Index))
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, permanent(fmt.Errorf("no embedding returned for input %d", i))
		}
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}

// retryableStatus reports whether an HTTP status is worth another attempt.
func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}

	return result
}
