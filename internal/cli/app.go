package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/csep/internal/cache"
	"github.com/dshills/csep/internal/chunker"
	"github.com/dshills/csep/internal/config"
	"github.com/dshills/csep/internal/embedder"
	"github.com/dshills/csep/internal/files"
	"github.com/dshills/csep/internal/indexer"
	"github.com/dshills/csep/internal/logging"
	"github.com/dshills/csep/internal/searcher"
)

// options holds flag values for one command tree.
type options struct {
	configPath string
	provider   string
	model      string
	workers    int
	verbose    bool

	floor      float32
	noQuery    bool
	listModels bool
	vimgrep    bool
	limit      int
}

// app is the wired pipeline for one invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	embedder embedder.Embedder
	store    *cache.Store
	searcher *searcher.Searcher
}

// loadConfig merges file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if opts.provider != "" {
		cfg.SetProvider(opts.provider)
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if flags.Changed("floor") {
		cfg.Floor = opts.floor
	}
	if flags.Changed("limit") {
		cfg.Limit = opts.limit
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setupLogging installs the configured slog logger on stderr.
func setupLogging(w io.Writer, cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.Setup(w, level), nil
}

// newApp loads settings and builds every component.
func newApp(cmd *cobra.Command, opts *options) (*app, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	logger, err := setupLogging(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return nil, err
	}

	tokenizer, err := chunker.NewTokenizer(cfg.Tokenizer)
	if err != nil {
		logger.Warn("tokenizer unavailable, estimating token counts", "tokenizer", cfg.Tokenizer, "error", err)
		tokenizer = chunker.HeuristicTokenizer{}
	}

	emb, err := embedder.New(cfg.Embedder())
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	store, err := cache.NewStore(cfg.CacheDir, chunker.New(cfg.MaxTokens, tokenizer),
		cache.WithLogger(logging.Component(logger, "cache")))
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	idx := indexer.New(store, emb, indexer.WithLogger(logging.Component(logger, "indexer")))
	lister := &files.Lister{
		Excludes:      cfg.Exclude,
		IncludeHidden: cfg.IncludeHidden,
		MaxFileSize:   cfg.MaxFileSize,
		Logger:        logging.Component(logger, "files"),
	}
	srch := searcher.NewSearcher(emb, idx, lister, searcher.WithLogger(logging.Component(logger, "searcher")))

	logger.Debug("configured",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"cache_dir", cfg.CacheDir,
		"max_tokens", cfg.MaxTokens,
		"workers", cfg.Workers)

	return &app{
		cfg:      cfg,
		logger:   logger,
		embedder: emb,
		store:    store,
		searcher: srch,
	}, nil
}

func (a *app) Close() error {
	return a.embedder.Close()
}

// indexSummary describes a finished build in one line.
func indexSummary(stats *indexer.Statistics) string {
	return fmt.Sprintf("Indexed %d files (%d embedded, %d cached, %d skipped, %d failed) into %d chunks in %s",
		stats.FilesIndexed, stats.FilesEmbedded, stats.CacheHits, stats.FilesSkipped, stats.FilesFailed,
		stats.ChunksCreated, stats.Duration.Round(time.Millisecond))
}

var errNoQuery = errors.New("no search phrase given (pass it as an argument or on stdin)")
