package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// semanticSearchTool returns the tool definition for semantic_search
func semanticSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "semantic_search",
		Description: "Rank text chunks under a file or directory by semantic similarity to a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the file or directory to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search phrase",
				},
				"floor": map[string]interface{}{
					"type":        "number",
					"description": "Results must score strictly above this cosine similarity",
					"minimum":     -1.0,
					"maximum":     1.0,
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"path", "query"},
		},
	}
}

// compareTextTool returns the tool definition for compare_text
func compareTextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "compare_text",
		Description: "Return the cosine similarity between the embeddings of two texts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"first": map[string]interface{}{
					"type":        "string",
					"description": "First text",
				},
				"second": map[string]interface{}{
					"type":        "string",
					"description": "Second text",
				},
			},
			Required: []string{"first", "second"},
		},
	}
}

// cacheStatusTool returns the tool definition for cache_status
func cacheStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_status",
		Description: "Report the embedding cache location, entry count and size",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// buildCacheTool returns the tool definition for build_cache
func buildCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "build_cache",
		Description: "Embed every text file under a directory so later searches hit the cache",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the file or directory to index",
				},
			},
			Required: []string{"path"},
		},
	}
}
