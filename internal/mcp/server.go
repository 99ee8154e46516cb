package mcp

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/csep/internal/cache"
	"github.com/dshills/csep/internal/embedder"
	"github.com/dshills/csep/internal/indexer"
	"github.com/dshills/csep/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "csep"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the components the tools run on. Searcher and Store must share
// the same cache root.
type Deps struct {
	Searcher *searcher.Searcher
	Store    *cache.Store
	Embedder embedder.Embedder

	// Defaults for optional tool arguments
	Floor   float32
	Limit   int
	Workers int
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	searcher *searcher.Searcher
	store    *cache.Store
	embedder embedder.Embedder
	floor    float32
	limit    int
	workers  int
	lock     indexer.IndexLock
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. It must not write to stdout.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps, opts ...Option) (*Server, error) {
	if deps.Searcher == nil || deps.Store == nil || deps.Embedder == nil {
		return nil, errors.New("mcp: searcher, store and embedder are required")
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		searcher: deps.Searcher,
		store:    deps.Store,
		embedder: deps.Embedder,
		floor:    deps.Floor,
		limit:    deps.Limit,
		workers:  deps.Workers,
		logger:   slog.Default().With("component", "mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s, nil
}

// Serve speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(slogWriter{s.logger}, "", 0))

	s.logger.Info("MCP server ready", "provider", s.embedder.Provider(), "model", s.embedder.Model())
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(semanticSearchTool(), s.handleSemanticSearch)
	s.mcp.AddTool(compareTextTool(), s.handleCompareText)
	s.mcp.AddTool(cacheStatusTool(), s.handleCacheStatus)
	s.mcp.AddTool(buildCacheTool(), s.handleBuildCache)
}

// slogWriter forwards the stdio server's log lines to slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	for len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	w.logger.Error(msg)
	return len(p), nil
}
