package embedder

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-crypt/x/blake2b"
)

// trigramWeight scales character trigram features relative to whole words.
const trigramWeight = 0.5

// LocalProvider embeds text offline by hashing word and character trigram
// features into a fixed number of buckets. It captures lexical overlap
// only, but needs no model server and is fully deterministic.
type LocalProvider struct {
	model     string
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder with LocalDimension buckets.
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: LocalDimension,
		cache:     cache,
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, l, req)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return generateCached(ctx, l.cache, ProviderLocal, l.model, l.BatchLimit(), req, l.fetch)
}

// BatchLimit is 0: embedding is local and unbounded.
func (l *LocalProvider) BatchLimit() int {
	return 0
}

func (l *LocalProvider) fetch(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := l.embed(text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (l *LocalProvider) embed(text string) ([]float32, error) {
	vector := make([]float32, l.dimension)

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		// Punctuation-only text still gets a non-zero vector.
		words = []string{text}
	}

	for _, word := range words {
		if err := l.addFeature(vector, word, 1); err != nil {
			return nil, err
		}
		runes := []rune(" " + word + " ")
		for i := 0; i+3 <= len(runes); i++ {
			if err := l.addFeature(vector, "#"+string(runes[i:i+3]), trigramWeight); err != nil {
				return nil, err
			}
		}
	}

	return NormalizeVector(vector), nil
}

// addFeature adds weight to the bucket chosen by the feature's hash, with a
// sign taken from the hash so collisions tend to cancel.
func (l *LocalProvider) addFeature(vector []float32, feature string, weight float32) error {
	h, err := blake2b.New(8, nil)
	if err != nil {
		return fmt.Errorf("blake2b: %w", err)
	}
	h.Write([]byte(feature))
	sum := binary.LittleEndian.Uint64(h.Sum(nil))

	bucket := int(sum % uint64(len(vector)))
	if sum>>63 == 1 {
		weight = -weight
	}
	vector[bucket] += weight
	return nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
