package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/csep/internal/chunker"
	"github.com/dshills/csep/internal/fingerprint"
	"github.com/dshills/csep/pkg/types"
)

// countingEmbedder returns a vector derived from each text's length and
// records how many times it was called.
type countingEmbedder struct {
	calls atomic.Int32
	texts atomic.Int32
}

func (c *countingEmbedder) embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, float32(i)}
	}
	return out, nil
}

func newTestStore(t *testing.T, root string) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewStore(root, chunker.New(8, chunker.HeuristicTokenizer{}), WithLogger(logger))
	require.NoError(t, err)
	return store
}

const sampleText = "The quick brown fox jumps over the lazy dog.\n\nPack my box with five dozen liquor jugs.\n"

func TestNewStore_EmptyRoot(t *testing.T) {
	_, err := NewStore("", nil)
	assert.Error(t, err)
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}
	raw := []byte(sampleText)

	first, outcome, err := store.GetOrCompute(context.Background(), "a.txt", raw, emb.embed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	require.NotEmpty(t, first)
	assert.Equal(t, int32(1), emb.calls.Load(), "one batched call per file")
	assert.FileExists(t, store.Path(fingerprint.Of(raw)))

	second, outcome, err := store.GetOrCompute(context.Background(), "a.txt", raw, emb.embed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), emb.calls.Load(), "second run must not embed")
}

func TestGetOrCompute_ChunksCoverText(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}

	chunks, _, err := store.GetOrCompute(context.Background(), "a.txt", []byte(sampleText), emb.embed)
	require.NoError(t, err)

	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].StartLine)
	for _, c := range chunks {
		require.NoError(t, c.Validate())
		assert.Contains(t, sampleText, c.Text)
	}
}

func TestGetOrCompute_SharedAcrossPaths(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}
	raw := []byte(sampleText)

	_, _, err := store.GetOrCompute(context.Background(), "a.txt", raw, emb.embed)
	require.NoError(t, err)
	_, outcome, err := store.GetOrCompute(context.Background(), "copy/of/a.txt", raw, emb.embed)
	require.NoError(t, err)

	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestGetOrCompute_CorruptEntryRecovered(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root)
	emb := &countingEmbedder{}
	raw := []byte(sampleText)
	fp := fingerprint.Of(raw)

	require.NoError(t, os.WriteFile(store.Path(fp), []byte("garbage bytes"), 0o644))

	chunks, outcome, err := store.GetOrCompute(context.Background(), "a.txt", raw, emb.embed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecovered, outcome)
	assert.NotEmpty(t, chunks)
	assert.Equal(t, int32(1), emb.calls.Load())

	loaded, err := store.Load(fp)
	require.NoError(t, err, "entry must be valid after recovery")
	assert.Equal(t, chunks, loaded)
}

func TestGetOrCompute_UnwritableRoot(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// A regular file in the path makes directory creation fail.
	store := newTestStore(t, filepath.Join(blocker, "cache"))
	emb := &countingEmbedder{}

	chunks, outcome, err := store.GetOrCompute(context.Background(), "a.txt", []byte(sampleText), emb.embed)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.NotEmpty(t, chunks)
}

func TestGetOrCompute_EmbedError(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	raw := []byte(sampleText)
	boom := errors.New("backend down")

	_, _, err := store.GetOrCompute(context.Background(), "a.txt", raw,
		func(context.Context, []string) ([][]float32, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	_, err = store.Load(fingerprint.Of(raw))
	assert.ErrorIs(t, err, ErrNotFound, "failed embeds must not be cached")
}

func TestGetOrCompute_CountMismatch(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	_, _, err := store.GetOrCompute(context.Background(), "a.txt", []byte(sampleText),
		func(context.Context, []string) ([][]float32, error) { return [][]float32{{1}}, nil })
	assert.ErrorIs(t, err, types.ErrEmbeddingCountMismatch)
}

func TestGetOrCompute_EmptyVector(t *testing.T) {
	store := newTestStore(t, t.TempDir())

	_, _, err := store.GetOrCompute(context.Background(), "a.txt", []byte("x"),
		func(_ context.Context, texts []string) ([][]float32, error) {
			return make([][]float32, len(texts)), nil
		})
	assert.ErrorIs(t, err, types.ErrMissingEmbedding)
}

func TestGetOrCompute_EmptyContent(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}

	chunks, _, err := store.GetOrCompute(context.Background(), "empty.txt", []byte("\n\n  \n"), emb.embed)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, int32(0), emb.calls.Load())
}

func TestGetOrCompute_ConcurrentSameContent(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}
	raw := []byte(sampleText)

	results := make([][]types.Chunk, 8)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunks, _, err := store.GetOrCompute(context.Background(), fmt.Sprintf("f%d.txt", i), raw, emb.embed)
			assert.NoError(t, err)
			results[i] = chunks
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), emb.calls.Load())

	// Callers never share vector storage.
	seen := map[*float32]bool{}
	for _, chunks := range results {
		require.NotEmpty(t, chunks)
		assert.Equal(t, results[0], chunks)
		first := &chunks[0].Embedding[0]
		assert.False(t, seen[first])
		seen[first] = true
	}
}

func TestGetOrCompute_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}
	raw := []byte(sampleText)

	started := make(chan struct{})
	release := make(chan struct{})
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return emb.embed(ctx, texts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := store.GetOrCompute(ctx, "first.txt", raw, embed)
		firstErr <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	type outcome struct {
		chunks []types.Chunk
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		chunks, _, err := store.GetOrCompute(context.Background(), "second.txt", raw, embed)
		second <- outcome{chunks, err}
	}()
	close(release)

	got := <-second
	require.NoError(t, got.err)
	assert.NotEmpty(t, got.chunks)
	assert.Equal(t, int32(1), emb.calls.Load())
}

func TestGetOrCompute_CancelledBeforeStart(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	emb := &countingEmbedder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.GetOrCompute(ctx, "a.txt", []byte(sampleText), emb.embed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), emb.calls.Load())
}

func TestStore_ClearAndStats(t *testing.T) {
	root := t.TempDir()
	store := newTestStore(t, root)
	emb := &countingEmbedder{}

	for _, text := range []string{"one\n", "two\n", "three\n"} {
		_, _, err := store.GetOrCompute(context.Background(), "f.txt", []byte(text), emb.embed)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("keep"), 0o644))

	st, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Entries)
	assert.Positive(t, st.Bytes)
	assert.Equal(t, root, st.Root)

	removed, err := store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.NoDirExists(t, root)

	st, err = store.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}

func TestStore_StatsMissingRoot(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "missing"))

	st, err := store.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Entries)

	removed, err := store.Clear()
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStore_RemoveMissing(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	assert.NoError(t, store.Remove(fingerprint.OfString("nothing")))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "hit", OutcomeHit.String())
	assert.Equal(t, "miss", OutcomeMiss.String())
	assert.Equal(t, "recovered", OutcomeRecovered.String())
}
