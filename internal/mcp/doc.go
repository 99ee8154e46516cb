// Package mcp implements the Model Context Protocol (MCP) server for csep.
//
// The server exposes four tools to AI coding assistants:
//   - semantic_search: rank chunks under a path against a query
//   - compare_text: cosine similarity of two texts
//   - cache_status: location and size of the embedding cache
//   - build_cache: embed every file under a path ahead of time
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio. The server is started with:
//
//	csep mcp
//
// Stdout carries protocol messages only; logs go to stderr.
//
// # Tool: semantic_search
//
//	Request:
//	{
//	  "name": "semantic_search",
//	  "arguments": {
//	    "path": "/path/to/notes",
//	    "query": "fast animal",
//	    "floor": 0.3,
//	    "limit": 5
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "similarity": 0.81,
//	      "file": "/path/to/notes/a.txt",
//	      "line": 1,
//	      "end_line": 1,
//	      "chunk": "the quick brown fox"
//	    }
//	  ],
//	  "total_results": 1,
//	  "files_indexed": 2,
//	  "cache_hits": 2
//	}
//
// Paths must be absolute. Omitted floor and limit fall back to the server's
// configured defaults.
//
// # Tool: build_cache
//
// Only one build runs at a time. A second call while one is running fails
// with code -32002 instead of queueing.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "csep": {
//	      "command": "/usr/local/bin/csep",
//	      "args": ["mcp"],
//	      "env": {
//	        "CSEP_PROVIDER": "ollama"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (filesystem, cache, etc.)
//   - -32002: Cache build in progress
//   - -32004: Empty query
//   - -32005: Query could not be embedded
package mcp
