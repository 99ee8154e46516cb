package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/csep/pkg/types"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// EmbeddingRequest represents a request to generate embeddings
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override default model
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
	Model string // Optional: override default model
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch embeds up to the provider's batch limit, preserving order
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension, or 0 if not yet known
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// BatchLimiter is implemented by embedders whose backend caps the number of
// texts per request. A limit of 0 means any number.
type BatchLimiter interface {
	BatchLimit() int
}

// batchLimit returns e's per-request cap, MaxBatchSize when e does not say.
func batchLimit(e Embedder) int {
	if l, ok := e.(BatchLimiter); ok {
		return l.BatchLimit()
	}
	return MaxBatchSize
}

// EmbedTexts embeds any number of texts through e in as few requests as the
// backend allows: one when it has no batch limit. The result has exactly
// one vector per input, in input order.
func EmbedTexts(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	limit := batchLimit(e)
	if limit <= 0 {
		limit = max(len(texts), 1)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += limit {
		end := min(start+limit, len(texts))

		resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts[start:end]})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("%w: sent %d texts, got %d embeddings",
				types.ErrEmbeddingCountMismatch, end-start, len(resp.Embeddings))
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Vector)
		}
	}
	return out, nil
}

// Func adapts e to a plain batch embedding function.
func Func(e Embedder) func(context.Context, []string) ([][]float32, error) {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		return EmbedTexts(ctx, e, texts)
	}
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](DefaultCacheSize)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a deep copy of an embedding from cache
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching.
// The model is mixed in so one cache can serve several models.
func ComputeHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request against a
// per-request limit; limit <= 0 means unlimited.
func ValidateBatchRequest(req BatchEmbeddingRequest, limit int) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if limit > 0 && len(req.Texts) > limit {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, limit)
	}

	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}

// batchFunc embeds texts that missed the cache. It must return one vector
// per input in order.
type batchFunc func(ctx context.Context, texts []string, model string) ([][]float32, error)

// generateCached serves what it can from cache and sends only the misses
// to fetch, then stores the fresh vectors.
func generateCached(ctx context.Context, cache *Cache, provider, model string, limit int, req BatchEmbeddingRequest, fetch batchFunc) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req, limit); err != nil {
		return nil, err
	}
	if req.Model != "" {
		model = req.Model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missIdx []int
	var missTexts []string
	for i, text := range req.Texts {
		hash := ComputeHash(model, text)
		if cache != nil {
			if emb, ok := cache.Get(hash); ok {
				embeddings[i] = emb
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) > 0 {
		vectors, err := fetch(ctx, missTexts, model)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(missTexts) {
			return nil, fmt.Errorf("%w: %w: sent %d texts, got %d embeddings",
				ErrProviderFailed, types.ErrEmbeddingCountMismatch, len(missTexts), len(vectors))
		}
		for j, i := range missIdx {
			emb := &Embedding{
				Vector:    vectors[j],
				Dimension: len(vectors[j]),
				Provider:  provider,
				Model:     model,
				Hash:      ComputeHash(model, req.Texts[i]),
			}
			if cache != nil {
				cache.Set(emb.Hash, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   provider,
		Model:      model,
	}, nil
}

// generateOne embeds a single text through the batch path.
func generateOne(ctx context.Context, e Embedder, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := e.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return resp.Embeddings[0], nil
}
