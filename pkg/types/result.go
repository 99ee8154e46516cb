package types

// RankedResult is a chunk scored against a query vector.
// Results are derived per run and never persisted.
type RankedResult struct {
	FilePath   string
	Chunk      Chunk
	Similarity float32
}

// Line returns the 1-based line the matched chunk starts on.
func (r *RankedResult) Line() int {
	return r.Chunk.StartLine
}
