package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/csep/internal/chunker"
	"github.com/dshills/csep/internal/fingerprint"
	"github.com/dshills/csep/pkg/types"
)

// FileSuffix is appended to the hex fingerprint to name an entry file.
const FileSuffix = ".cache"

// ErrNotFound is returned by Load when no entry exists for a fingerprint.
var ErrNotFound = errors.New("cache entry not found")

// Splitter turns file text into line-addressed segments.
type Splitter interface {
	Split(text string) []chunker.Segment
}

// EmbedFunc embeds texts, returning one vector per input in the same order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Outcome reports how GetOrCompute produced its chunks.
type Outcome int

const (
	// OutcomeMiss means no entry existed and chunks were embedded.
	OutcomeMiss Outcome = iota
	// OutcomeHit means chunks came from a valid entry.
	OutcomeHit
	// OutcomeRecovered means a corrupt entry was discarded and rebuilt.
	OutcomeRecovered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeRecovered:
		return "recovered"
	default:
		return "miss"
	}
}

// Stats summarizes the entries under the cache root.
type Stats struct {
	Root    string
	Entries int
	Bytes   int64
}

// Store is a content-addressed directory of embedded chunk lists. Entries are
// keyed by the fingerprint of the raw file bytes only, so renamed or copied
// files share one entry. Safe for concurrent use.
type Store struct {
	root     string
	splitter Splitter
	logger   *slog.Logger
	group    singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for cache warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a store rooted at root. The directory is created lazily on
// the first write. A nil splitter uses a default chunker.
func NewStore(root string, splitter Splitter, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("cache root must not be empty")
	}
	if splitter == nil {
		splitter = chunker.New(0, nil)
	}
	s := &Store{
		root:     root,
		splitter: splitter,
		logger:   slog.Default().With("component", "cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the entry file path for a fingerprint.
func (s *Store) Path(fp fingerprint.Fingerprint) string {
	return filepath.Join(s.root, fp.String()+FileSuffix)
}

// GetOrCompute returns the embedded chunks for raw. A valid entry is returned
// as is. Otherwise the text is split, embedded with embed and persisted.
// Failure to persist is logged and does not fail the call; embedding
// failures are returned and nothing is written.
//
// Concurrent calls for identical content share one computation. It runs
// detached from any single caller's context, so a caller that gives up
// returns ctx.Err() without failing the others.
func (s *Store) GetOrCompute(ctx context.Context, filePath string, raw []byte, embed EmbedFunc) ([]types.Chunk, Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, OutcomeMiss, err
	}
	fp := fingerprint.Of(raw)

	type result struct {
		chunks  []types.Chunk
		outcome Outcome
	}
	ch := s.group.DoChan(fp.String(), func() (interface{}, error) {
		chunks, outcome, err := s.getOrCompute(context.WithoutCancel(ctx), filePath, fp, raw, embed)
		if err != nil {
			return nil, err
		}
		return result{chunks: chunks, outcome: outcome}, nil
	})

	select {
	case <-ctx.Done():
		return nil, OutcomeMiss, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, OutcomeMiss, r.Err
		}
		res := r.Val.(result)
		if !r.Shared {
			return res.chunks, res.outcome, nil
		}
		chunks := make([]types.Chunk, len(res.chunks))
		for i, c := range res.chunks {
			chunks[i] = c.Clone()
		}
		return chunks, res.outcome, nil
	}
}

func (s *Store) getOrCompute(ctx context.Context, filePath string, fp fingerprint.Fingerprint, raw []byte, embed EmbedFunc) ([]types.Chunk, Outcome, error) {
	outcome := OutcomeMiss

	chunks, err := s.Load(fp)
	switch {
	case err == nil:
		s.logger.Debug("cache hit", "file", filePath, "fingerprint", fp.String())
		return chunks, OutcomeHit, nil
	case errors.Is(err, ErrCorrupt):
		s.logger.Warn("discarding corrupt cache entry", "file", filePath, "entry", s.Path(fp), "error", err)
		if rmErr := s.Remove(fp); rmErr != nil {
			s.logger.Warn("failed to remove corrupt cache entry", "entry", s.Path(fp), "error", rmErr)
		}
		outcome = OutcomeRecovered
	case errors.Is(err, ErrNotFound):
	default:
		s.logger.Warn("cache entry unreadable", "file", filePath, "entry", s.Path(fp), "error", err)
	}

	chunks, err = s.compute(ctx, raw, embed)
	if err != nil {
		return nil, outcome, err
	}

	if err := s.Save(fp, chunks); err != nil {
		s.logger.Warn("failed to write cache entry", "file", filePath, "error", err)
	}
	return chunks, outcome, nil
}

func (s *Store) compute(ctx context.Context, raw []byte, embed EmbedFunc) ([]types.Chunk, error) {
	segments := s.splitter.Split(string(raw))
	if len(segments) == 0 {
		return []types.Chunk{}, nil
	}

	vectors, err := embed(ctx, chunker.Texts(segments))
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(segments) {
		return nil, fmt.Errorf("%w: %d chunks, %d vectors",
			types.ErrEmbeddingCountMismatch, len(segments), len(vectors))
	}

	chunks := make([]types.Chunk, len(segments))
	for i, seg := range segments {
		chunks[i] = types.Chunk{
			StartLine: seg.StartLine,
			Text:      seg.Text,
			Embedding: vectors[i],
		}
		if err := chunks[i].Validate(); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
	}
	return chunks, nil
}

// Load reads and decodes the entry for fp. It returns ErrNotFound when no
// entry exists and an error wrapping ErrCorrupt when decoding fails.
func (s *Store) Load(fp fingerprint.Fingerprint) ([]types.Chunk, error) {
	data, err := os.ReadFile(s.Path(fp))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return UnmarshalChunks(data)
}

// Save writes chunks as the entry for fp. The payload goes to a temporary
// file first and is renamed into place, so readers never see a partial entry.
func (s *Store) Save(fp fingerprint.Fingerprint, chunks []types.Chunk) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, fp.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(MarshalChunks(chunks)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp entry: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(fp)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}

// Remove deletes the entry for fp. A missing entry is not an error.
func (s *Store) Remove(fp fingerprint.Fingerprint) error {
	err := os.Remove(s.Path(fp))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes the cache root and everything in it, returning how many
// entries it held.
func (s *Store) Clear() (int, error) {
	st, err := s.Stats()
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(s.root); err != nil {
		return 0, fmt.Errorf("remove cache dir: %w", err)
	}
	return st.Entries, nil
}

// Stats counts the entries under the root. A missing root reports zero.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Root: s.root}
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isEntryName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		st.Entries++
		st.Bytes += info.Size()
	}
	return st, nil
}

func isEntryName(name string) bool {
	hex, ok := strings.CutSuffix(name, FileSuffix)
	if !ok {
		return false
	}
	_, err := fingerprint.Parse(hex)
	return err == nil
}
