package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/csep/internal/cache"
	"github.com/dshills/csep/internal/embedder"
	"github.com/dshills/csep/pkg/types"
)

// Indexer coordinates the per-file pipeline: read -> chunk -> embed -> cache
type Indexer struct {
	store    *cache.Store
	embedder embedder.Embedder
	logger   *slog.Logger
}

// Config contains configuration for one indexing run
type Config struct {
	Workers int // Number of concurrent workers (default: runtime.NumCPU())

	// OnFileDone is called from worker goroutines after each file,
	// whatever its outcome. It must be safe for concurrent use.
	OnFileDone func(path string)
}

// Status is the per-file outcome of a run.
type Status int

const (
	StatusIndexed Status = iota // chunks available (hit, miss or recovered)
	StatusSkipped               // unreadable or not UTF-8 text
	StatusFailed                // embedding failed
)

// FileResult holds one file's chunks or the reason it has none.
type FileResult struct {
	Path    string
	Chunks  []types.Chunk
	Status  Status
	Outcome cache.Outcome
	Err     error
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed   int
	CacheHits      int
	CacheRecovered int
	FilesEmbedded  int
	FilesSkipped   int
	FilesFailed    int
	ChunksCreated  int
	Duration       time.Duration
	ErrorMessages  []string
}

// Result is the outcome of IndexFiles.
type Result struct {
	// Files has one entry per input path, in input order.
	Files []FileResult
	Stats *Statistics
}

// Indexed returns the results that produced chunks, in input order.
func (r *Result) Indexed() []FileResult {
	out := make([]FileResult, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Status == StatusIndexed {
			out = append(out, f)
		}
	}
	return out
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger used for per-file diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// New creates a new Indexer instance
func New(store *cache.Store, emb embedder.Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		store:    store,
		embedder: emb,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexFiles produces chunks for every path, reading them from the cache
// when possible. Per-file problems are recorded in the result and never
// abort the run; only context cancellation does.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string, config *Config) (*Result, error) {
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	startTime := time.Now()
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	embed := embedder.Func(idx.embedder)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Each worker writes only its own slot.
			results[i] = idx.indexFile(gctx, path, embed)
			if config.OnFileDone != nil {
				config.OnFileDone(path)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &Statistics{ErrorMessages: make([]string, 0)}
	for _, r := range results {
		switch r.Status {
		case StatusIndexed:
			stats.FilesIndexed++
			stats.ChunksCreated += len(r.Chunks)
			switch r.Outcome {
			case cache.OutcomeHit:
				stats.CacheHits++
			case cache.OutcomeRecovered:
				stats.CacheRecovered++
				stats.FilesEmbedded++
			default:
				stats.FilesEmbedded++
			}
		case StatusSkipped:
			stats.FilesSkipped++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", r.Path, r.Err))
		case StatusFailed:
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", r.Path, r.Err))
		}
	}
	stats.Duration = time.Since(startTime)

	return &Result{Files: results, Stats: stats}, nil
}

// indexFile indexes a single file
func (idx *Indexer) indexFile(ctx context.Context, path string, embed cache.EmbedFunc) FileResult {
	res := FileResult{Path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		res.Status = StatusSkipped
		res.Err = err
		idx.logger.Warn("skipping unreadable file", "file", path, "error", err)
		return res
	}
	if !utf8.Valid(raw) {
		res.Status = StatusSkipped
		res.Err = types.ErrNotText
		idx.logger.Warn("skipping file", "file", path, "error", types.ErrNotText)
		return res
	}

	chunks, outcome, err := idx.store.GetOrCompute(ctx, path, raw, embed)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			idx.logger.Warn("failed to embed file", "file", path, "error", err)
		}
		return res
	}

	res.Status = StatusIndexed
	res.Chunks = chunks
	res.Outcome = outcome
	idx.logger.Debug("indexed file", "file", path, "chunks", len(chunks), "cache", outcome.String())
	return res
}
