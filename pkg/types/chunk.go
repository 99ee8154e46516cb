package types

import "strings"

// Chunk is a bounded-length text segment of a file together with its
// embedding vector and the line of the file on which it begins.
// Chunks are immutable once created.
type Chunk struct {
	// StartLine is 1-based.
	StartLine int
	Text      string
	Embedding []float32
}

// EndLine returns the last line of the file covered by the chunk.
func (c *Chunk) EndLine() int {
	return c.StartLine + strings.Count(strings.TrimRight(c.Text, "\n"), "\n")
}

// Dimension returns the length of the chunk's embedding.
func (c *Chunk) Dimension() int {
	return len(c.Embedding)
}

// Validate checks that the chunk is well formed.
func (c *Chunk) Validate() error {
	if c.Text == "" {
		return ErrEmptyContent
	}

	if c.StartLine <= 0 {
		return ErrInvalidStartLine
	}

	if len(c.Embedding) == 0 {
		return ErrMissingEmbedding
	}

	return nil
}

// Clone returns a deep copy of the chunk so callers cannot mutate cached vectors.
func (c Chunk) Clone() Chunk {
	vec := make([]float32, len(c.Embedding))
	copy(vec, c.Embedding)
	c.Embedding = vec
	return c
}
