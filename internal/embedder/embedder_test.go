package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/csep/pkg/types"
)

// stubEmbedder returns one fixed-size vector per text and records batch sizes.
type stubEmbedder struct {
	mu        sync.Mutex
	batches   []int
	drop      bool // return one embedding short
	unlimited bool // accept batches of any size
	err       error
}

// unlimitedEmbedder advertises no batch limit for the stub it wraps.
type unlimitedEmbedder struct {
	*stubEmbedder
}

func (unlimitedEmbedder) BatchLimit() int { return 0 }

func (s *stubEmbedder) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return generateOne(ctx, s, req)
}

func (s *stubEmbedder) GenerateBatch(_ context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	limit := MaxBatchSize
	if s.unlimited {
		limit = 0
	}
	if err := ValidateBatchRequest(req, limit); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	s.batches = append(s.batches, len(req.Texts))
	s.mu.Unlock()

	n := len(req.Texts)
	if s.drop {
		n--
	}
	resp := &BatchEmbeddingResponse{Provider: "stub", Model: "stub"}
	for i := 0; i < n; i++ {
		resp.Embeddings = append(resp.Embeddings, &Embedding{
			Vector:    []float32{float32(len(req.Texts[i]))},
			Dimension: 1,
		})
	}
	return resp, nil
}

func (s *stubEmbedder) Dimension() int   { return 1 }
func (s *stubEmbedder) Provider() string { return "stub" }
func (s *stubEmbedder) Model() string    { return "stub" }
func (s *stubEmbedder) Close() error     { return nil }

func TestComputeHash(t *testing.T) {
	a := ComputeHash("all-minilm", "hello world")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("all-minilm", "hello world"))
	assert.NotEqual(t, a, ComputeHash("nomic-embed-text", "hello world"))
	assert.NotEqual(t, a, ComputeHash("all-minilm", "hello world!"))
	// The separator keeps model/text boundaries unambiguous.
	assert.NotEqual(t, ComputeHash("ab", "c"), ComputeHash("a", "bc"))
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{"valid", []string{"a", "b"}, nil},
		{"empty batch", nil, ErrInvalidInput},
		{"empty text", []string{"a", ""}, ErrInvalidInput},
		{"too large", make([]string, MaxBatchSize+1), ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts}, MaxBatchSize)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateBatchRequest_Unlimited(t *testing.T) {
	texts := make([]string, 3*MaxBatchSize)
	for i := range texts {
		texts[i] = "x"
	}
	assert.NoError(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: texts}, 0))
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: texts}, 10), ErrBatchTooLarge)
}

func TestEmbedTexts(t *testing.T) {
	t.Run("splits into batches and keeps order", func(t *testing.T) {
		stub := &stubEmbedder{}
		texts := make([]string, 2*MaxBatchSize+5)
		for i := range texts {
			texts[i] = fmt.Sprintf("%*d", i+1, i)
		}

		vectors, err := EmbedTexts(context.Background(), stub, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))
		for i, v := range vectors {
			assert.Equal(t, float32(len(texts[i])), v[0])
		}
		assert.Equal(t, []int{MaxBatchSize, MaxBatchSize, 5}, stub.batches)
	})

	t.Run("unlimited backend gets one request", func(t *testing.T) {
		stub := &stubEmbedder{unlimited: true}
		texts := make([]string, 250)
		for i := range texts {
			texts[i] = fmt.Sprintf("chunk %d", i)
		}

		vectors, err := EmbedTexts(context.Background(), unlimitedEmbedder{stub}, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))
		assert.Equal(t, []int{250}, stub.batches)
	})

	t.Run("empty input makes no calls", func(t *testing.T) {
		stub := &stubEmbedder{}
		vectors, err := EmbedTexts(context.Background(), stub, nil)
		require.NoError(t, err)
		assert.Empty(t, vectors)
		assert.Empty(t, stub.batches)
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := EmbedTexts(context.Background(), &stubEmbedder{drop: true}, []string{"a", "b"})
		assert.ErrorIs(t, err, types.ErrEmbeddingCountMismatch)
	})

	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Func(&stubEmbedder{err: boom})(context.Background(), []string{"a"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestGenerateCached(t *testing.T) {
	cache := NewCache(10)
	var fetched [][]string
	fetch := func(_ context.Context, texts []string, model string) ([][]float32, error) {
		assert.Equal(t, "m", model)
		fetched = append(fetched, append([]string(nil), texts...))
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}

	_, err := generateCached(context.Background(), cache, "p", "m", 0,
		BatchEmbeddingRequest{Texts: []string{"aa", "bbb"}}, fetch)
	require.NoError(t, err)

	resp, err := generateCached(context.Background(), cache, "p", "m", 0,
		BatchEmbeddingRequest{Texts: []string{"bbb", "c", "aa"}}, fetch)
	require.NoError(t, err)

	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, []float32{3}, resp.Embeddings[0].Vector)
	assert.Equal(t, []float32{1}, resp.Embeddings[1].Vector)
	assert.Equal(t, []float32{2}, resp.Embeddings[2].Vector)
	assert.Equal(t, [][]string{{"aa", "bbb"}, {"c"}}, fetched, "second call fetches only misses")
}

func TestGenerateCached_ShortResponse(t *testing.T) {
	fetch := func(context.Context, []string, string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	_, err := generateCached(context.Background(), nil, "p", "m", 0,
		BatchEmbeddingRequest{Texts: []string{"a", "b"}}, fetch)
	assert.ErrorIs(t, err, types.ErrEmbeddingCountMismatch)
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := NewCache(3)

		_, ok := cache.Get("nonexistent")
		assert.False(t, ok)

		cache.Set("hash1", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "hash1"})
		got, ok := cache.Get("hash1")
		require.True(t, ok)
		assert.Equal(t, "hash1", got.Hash)
		assert.Equal(t, 1, cache.Size())
	})

	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(3)
		cache.Set("h", &Embedding{Vector: []float32{1, 2}})

		got, _ := cache.Get("h")
		got.Vector[0] = 99

		again, _ := cache.Get("h")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("eviction on capacity", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Set("hash2", &Embedding{Hash: "hash2"})
		cache.Set("hash3", &Embedding{Hash: "hash3"})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("hash1")
		assert.False(t, ok, "least recently used entry is evicted")
		_, ok = cache.Get("hash3")
		assert.True(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("hash1", &Embedding{Hash: "hash1"})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					hash := ComputeHash("m", fmt.Sprintf("text-%d-%d", id, j))
					cache.Set(hash, &Embedding{Vector: []float32{float32(id), float32(j)}, Hash: hash})
					cache.Get(hash)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 100, cache.Size())
	})
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))

	var sum float64
	for _, x := range NormalizeVector([]float32{1, 2, 3, 4, 5}) {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}
