package searcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/csep/internal/cache"
	"github.com/dshills/csep/internal/chunker"
	"github.com/dshills/csep/internal/embedder"
	"github.com/dshills/csep/internal/files"
	"github.com/dshills/csep/internal/indexer"
)

// conceptEmbedder maps words onto a few hand-picked concept axes so tests
// can reason about similarity.
type conceptEmbedder struct {
	mu        sync.Mutex
	calls     int
	queryErr  error
	batchSize []int
}

var concepts = map[string]int{
	"fast": 0, "quick": 0, "rapid": 0,
	"animal": 1, "fox": 1, "dog": 1,
	"machine": 2, "learning": 2, "models": 2,
}

func conceptVector(text string) []float32 {
	v := []float32{0, 0, 0, 0.1}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if axis, ok := concepts[strings.Trim(w, ".,")]; ok {
			v[axis]++
		}
	}
	return v
}

func (c *conceptEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	resp, err := c.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (c *conceptEmbedder) GenerateBatch(_ context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	c.mu.Lock()
	c.calls++
	c.batchSize = append(c.batchSize, len(req.Texts))
	c.mu.Unlock()

	resp := &embedder.BatchEmbeddingResponse{Provider: "concept", Model: "concept"}
	for _, text := range req.Texts {
		v := conceptVector(text)
		resp.Embeddings = append(resp.Embeddings, &embedder.Embedding{Vector: v, Dimension: len(v)})
	}
	return resp, nil
}

func (c *conceptEmbedder) Dimension() int   { return 4 }
func (c *conceptEmbedder) Provider() string { return "concept" }
func (c *conceptEmbedder) Model() string    { return "concept" }
func (c *conceptEmbedder) Close() error     { return nil }

func (c *conceptEmbedder) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSearcher(t *testing.T, emb embedder.Embedder, cacheDir string) *Searcher {
	t.Helper()
	store, err := cache.NewStore(cacheDir, chunker.New(0, nil), cache.WithLogger(discard()))
	require.NoError(t, err)
	idx := indexer.New(store, emb, indexer.WithLogger(discard()))
	return NewSearcher(emb, idx, &files.Lister{Logger: discard()}, WithLogger(discard()))
}

func writeDir(t *testing.T, contents map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestSearch_FastAnimal(t *testing.T) {
	root := writeDir(t, map[string]string{
		"a.txt": "the quick brown fox",
		"b.txt": "machine learning models",
	})
	s := newTestSearcher(t, &conceptEmbedder{}, t.TempDir())

	resp, err := s.Search(context.Background(), SearchRequest{
		Root:  root,
		Query: "fast animal",
		Floor: DefaultFloor,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Equal(t, filepath.Join(root, "a.txt"), resp.Results[0].FilePath)
	assert.Equal(t, 1, resp.Results[0].Line())
	assert.Greater(t, resp.Results[0].Similarity, DefaultFloor)
	assert.Equal(t, 2, resp.Index.FilesIndexed)
}

func TestSearch_ExactMatchScoresOne(t *testing.T) {
	root := writeDir(t, map[string]string{"exact.txt": "fast animal"})
	local, err := embedder.NewLocalProvider(nil)
	require.NoError(t, err)
	s := newTestSearcher(t, local, t.TempDir())

	resp, err := s.Search(context.Background(), SearchRequest{
		Root:  root,
		Query: "fast animal",
		Floor: DefaultFloor,
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.InDelta(t, 1.0, resp.Results[0].Similarity, 1e-5)
}

func TestSearch_SecondRunIsIdempotent(t *testing.T) {
	root := writeDir(t, map[string]string{
		"a.txt": "the quick brown fox\n\nA dog sleeps.\n",
		"b.txt": "machine learning models\n",
		"c.txt": "rapid fox\n",
	})
	cacheDir := t.TempDir()
	emb := &conceptEmbedder{}

	first, err := newTestSearcher(t, emb, cacheDir).Search(context.Background(), SearchRequest{
		Root: root, Query: "fast animal", Floor: DefaultFloor,
	})
	require.NoError(t, err)
	afterFirst := emb.callCount()

	second, err := newTestSearcher(t, emb, cacheDir).Search(context.Background(), SearchRequest{
		Root: root, Query: "fast animal", Floor: DefaultFloor,
	})
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, afterFirst+1, emb.callCount(), "only the query is embedded again")
	assert.Equal(t, 3, second.Index.CacheHits)
}

func TestSearch_Limit(t *testing.T) {
	root := writeDir(t, map[string]string{
		"a.txt": "quick fox",
		"b.txt": "fast dog",
		"c.txt": "rapid animal",
	})
	s := newTestSearcher(t, &conceptEmbedder{}, t.TempDir())

	resp, err := s.Search(context.Background(), SearchRequest{
		Root: root, Query: "fast animal", Floor: DefaultFloor, Limit: 2,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 3, resp.TotalResults)
}

func TestSearch_QueryFailureIsFatal(t *testing.T) {
	root := writeDir(t, map[string]string{"a.txt": "quick fox"})
	boom := errors.New("backend down")
	emb := &conceptEmbedder{queryErr: boom}
	s := newTestSearcher(t, emb, t.TempDir())

	_, err := s.Search(context.Background(), SearchRequest{Root: root, Query: "fast animal"})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrQueryEmbedding)
	assert.Zero(t, emb.callCount(), "no files are embedded")
}

func TestSearch_Validation(t *testing.T) {
	s := newTestSearcher(t, &conceptEmbedder{}, t.TempDir())

	_, err := s.Search(context.Background(), SearchRequest{Query: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = s.Search(context.Background(), SearchRequest{Query: "x", Floor: 2})
	assert.Error(t, err)

	_, err = s.Search(context.Background(), SearchRequest{Query: "x", Floor: float32(math.NaN())})
	assert.ErrorContains(t, err, "floor")
}

func TestSearch_Callbacks(t *testing.T) {
	root := writeDir(t, map[string]string{"a.txt": "quick fox", "b.txt": "dog"})
	s := newTestSearcher(t, &conceptEmbedder{}, t.TempDir())

	var listed int
	var mu sync.Mutex
	var done []string
	_, err := s.Search(context.Background(), SearchRequest{
		Root:          root,
		Query:         "fast animal",
		OnFilesListed: func(n int) { listed = n },
		OnFileDone: func(p string) {
			mu.Lock()
			done = append(done, p)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, listed)
	assert.Len(t, done, 2)
}

func TestCompare(t *testing.T) {
	s := newTestSearcher(t, &conceptEmbedder{}, t.TempDir())

	same, err := s.Compare(context.Background(), "quick fox", "fast animal")
	require.NoError(t, err)
	different, err := s.Compare(context.Background(), "quick fox", "machine learning")
	require.NoError(t, err)
	assert.Greater(t, same, different)

	_, err = s.Compare(context.Background(), "", "x")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestBuild(t *testing.T) {
	root := writeDir(t, map[string]string{"a.txt": "quick fox", "b.txt": "dog"})
	cacheDir := t.TempDir()
	emb := &conceptEmbedder{}
	s := newTestSearcher(t, emb, cacheDir)

	stats, err := s.Build(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 2, emb.callCount())

	stats, err = s.Build(context.Background(), root, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CacheHits)
	assert.Equal(t, 2, emb.callCount())
}

func TestBuild_MissingRoot(t *testing.T) {
	s := newTestSearcher(t, &conceptEmbedder{}, t.TempDir())
	_, err := s.Build(context.Background(), filepath.Join(t.TempDir(), "nope"), nil, nil)
	assert.Error(t, err)
}
