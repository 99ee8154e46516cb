package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/csep/internal/indexer"
	"github.com/dshills/csep/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another build_cache call is running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeEmbeddingFailed    = -32005 // The embedding backend could not embed the query
)

const (
	defaultLimit = 10
	maxLimit     = 100
	maxErrors    = 5
)

// handleSemanticSearch handles the semantic_search tool invocation
func (s *Server) handleSemanticSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := s.limit
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = getIntDefault(args, "limit", limit)
	if limit < 1 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	floor := float32(getFloatDefault(args, "floor", float64(s.floor)))
	if math.IsNaN(float64(floor)) || floor < -1 || floor > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "floor must be between -1 and 1", map[string]interface{}{
			"param": "floor",
			"value": fmt.Sprint(floor),
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Root:    path,
		Query:   query,
		Floor:   floor,
		Limit:   limit,
		Workers: s.workers,
	})
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be blank", nil)
	case errors.Is(err, searcher.ErrQueryEmbedding):
		return nil, newMCPError(ErrorCodeEmbeddingFailed, "failed to embed query", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":       i + 1,
			"similarity": r.Similarity,
			"file":       r.FilePath,
			"line":       r.Line(),
			"end_line":   r.Chunk.EndLine(),
			"chunk":      r.Chunk.Text,
		})
	}

	response := map[string]interface{}{
		"query":         query,
		"floor":         floor,
		"results":       results,
		"total_results": resp.TotalResults,
		"files_indexed": resp.Index.FilesIndexed,
		"cache_hits":    resp.Index.CacheHits,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	addErrors(response, resp.Index.ErrorMessages)

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCompareText handles the compare_text tool invocation
func (s *Server) handleCompareText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	first, _ := args["first"].(string)
	second, _ := args["second"].(string)
	for i, value := range []string{first, second} {
		if value == "" {
			name := [...]string{"first", "second"}[i]
			return nil, newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
				"param":  name,
				"reason": "missing or empty",
			})
		}
	}

	similarity, err := s.searcher.Compare(ctx, first, second)
	if errors.Is(err, searcher.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeInvalidParams, "texts cannot be blank", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "comparison failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"first":      first,
		"second":     second,
		"similarity": similarity,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStatus handles the cache_status tool invocation
func (s *Server) handleCacheStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.store.Stats()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read cache", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"root":     stats.Root,
		"entries":  stats.Entries,
		"bytes":    stats.Bytes,
		"provider": s.embedder.Provider(),
		"model":    s.embedder.Model(),
		"building": s.lock.Held(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBuildCache handles the build_cache tool invocation
func (s *Server) handleBuildCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	if !s.lock.TryAcquire() {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "a cache build is already running", nil)
	}
	defer s.lock.Release()

	stats, err := s.searcher.Build(ctx, path, &indexer.Config{Workers: s.workers}, nil)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "cache build failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"files_indexed":  stats.FilesIndexed,
		"files_embedded": stats.FilesEmbedded,
		"cache_hits":     stats.CacheHits,
		"files_skipped":  stats.FilesSkipped,
		"files_failed":   stats.FilesFailed,
		"chunks_created": stats.ChunksCreated,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	addErrors(response, stats.ErrorMessages)

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requirePath extracts and validates the path argument.
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validatePath(path); err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validatePath checks that path is absolute and exists
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}
	_, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	return nil
}

func addErrors(response map[string]interface{}, messages []string) {
	if len(messages) == 0 {
		return
	}
	if len(messages) > maxErrors {
		response["errors"] = messages[:maxErrors]
		response["error_count"] = len(messages)
		return
	}
	response["errors"] = messages
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
