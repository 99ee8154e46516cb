// Package types provides the data model shared by the csep pipeline.
//
// Chunk is the unit that gets embedded, cached and ranked:
//
//	chunk := types.Chunk{
//	    StartLine: 12,
//	    Text:      "func ParseFile(path string) error {",
//	    Embedding: vector,
//	}
//
// Line numbers are 1-based and count the newlines that precede the chunk in
// the original file, so identical content always yields identical StartLine
// values.
//
// RankedResult pairs a chunk with the file it came from and its cosine
// similarity to the query. A slice of results is ordered by similarity
// descending, with ties left in file discovery order then chunk order.
package types
