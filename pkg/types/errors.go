package types

import "errors"

// Domain errors shared by the pipeline components
var (
	ErrEmptyContent           = errors.New("content cannot be empty")
	ErrMissingEmbedding       = errors.New("chunk has no embedding")
	ErrInvalidStartLine       = errors.New("start line must be positive")
	ErrDimensionMismatch      = errors.New("embedding dimension mismatch")
	ErrZeroVector             = errors.New("embedding has zero magnitude")
	ErrEmbeddingCountMismatch = errors.New("embedding count does not match input count")
	ErrNotText                = errors.New("file is not valid UTF-8 text")
)
