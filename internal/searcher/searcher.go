package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dshills/csep/internal/embedder"
	"github.com/dshills/csep/internal/indexer"
	"github.com/dshills/csep/pkg/types"
)

// DefaultFloor is the similarity a result must exceed by default.
const DefaultFloor float32 = 0.2

var (
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrQueryEmbedding wraps a failure to embed the search phrase.
	ErrQueryEmbedding = errors.New("embed query")
)

// Lister returns the candidate files under root.
type Lister interface {
	List(ctx context.Context, root string) ([]string, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Root  string
	Query string
	Floor float32 // Results must score strictly above this
	Limit int     // 0 returns every result above Floor

	Workers    int
	OnFileDone func(path string)
	// OnFilesListed is called once with the number of candidate files.
	OnFilesListed func(n int)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.RankedResult
	TotalResults int // Before Limit was applied
	Index        *indexer.Statistics
	Rank         RankStats
	Duration     time.Duration
}

// Searcher runs the whole pipeline: embed query, list files, index, rank
type Searcher struct {
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	lister   Lister
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger used for ranking diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearcher creates a new Searcher instance
func NewSearcher(emb embedder.Embedder, idx *indexer.Indexer, lister Lister, opts ...Option) *Searcher {
	s := &Searcher{
		embedder: emb,
		indexer:  idx,
		lister:   lister,
		logger:   slog.Default().With("component", "searcher"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search ranks every chunk under req.Root against req.Query. Failing to
// embed the query is fatal; per-file and per-chunk problems are logged and
// reported in the response.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	query, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}

	result, err := s.index(ctx, req.Root, &indexer.Config{
		Workers:    req.Workers,
		OnFileDone: req.OnFileDone,
	}, req.OnFilesListed)
	if err != nil {
		return nil, err
	}

	files := make([]FileChunks, 0, len(result.Files))
	for _, f := range result.Indexed() {
		files = append(files, FileChunks{Path: f.Path, Chunks: f.Chunks})
	}

	results, stats := Rank(query.Vector, files, req.Floor)
	for _, skipped := range stats.Skipped {
		s.logger.Warn("skipping chunk", "file", skipped.Path, "line", skipped.Line, "error", skipped.Err)
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Index:        result.Stats,
		Rank:         stats,
	}
	if req.Limit > 0 && len(response.Results) > req.Limit {
		response.Results = response.Results[:req.Limit]
	}
	response.Duration = time.Since(startTime)

	s.logger.Debug("search complete",
		"query", req.Query,
		"files", result.Stats.FilesIndexed,
		"cache_hits", result.Stats.CacheHits,
		"results", response.TotalResults,
		"duration", response.Duration)

	return response, nil
}

// Compare returns the similarity of two texts.
func (s *Searcher) Compare(ctx context.Context, first, second string) (float32, error) {
	if strings.TrimSpace(first) == "" || strings.TrimSpace(second) == "" {
		return 0, ErrEmptyQuery
	}

	resp, err := s.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
		Texts: []string{first, second},
	})
	if err != nil {
		return 0, fmt.Errorf("embed texts: %w", err)
	}
	if len(resp.Embeddings) != 2 {
		return 0, fmt.Errorf("%w: sent 2 texts, got %d embeddings",
			types.ErrEmbeddingCountMismatch, len(resp.Embeddings))
	}

	return CosineSimilarity(resp.Embeddings[0].Vector, resp.Embeddings[1].Vector)
}

// Build fills the cache for every file under root without searching.
func (s *Searcher) Build(ctx context.Context, root string, config *indexer.Config, onFilesListed func(n int)) (*indexer.Statistics, error) {
	result, err := s.index(ctx, root, config, onFilesListed)
	if err != nil {
		return nil, err
	}
	return result.Stats, nil
}

func (s *Searcher) index(ctx context.Context, root string, config *indexer.Config, onFilesListed func(n int)) (*indexer.Result, error) {
	if root == "" {
		root = "."
	}
	paths, err := s.lister.List(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if onFilesListed != nil {
		onFilesListed(len(paths))
	}

	result, err := s.indexer.IndexFiles(ctx, paths, config)
	if err != nil {
		return nil, fmt.Errorf("index files: %w", err)
	}
	return result, nil
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return ErrEmptyQuery
	}
	if req.Limit < 0 {
		req.Limit = 0
	}
	if math.IsNaN(float64(req.Floor)) || req.Floor < -1 || req.Floor > 1 {
		return fmt.Errorf("floor %v outside [-1, 1]", req.Floor)
	}
	return nil
}
