package searcher

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/csep/pkg/types"
)

// ErrNonFinite is returned when a vector holds NaN or infinite components.
var ErrNonFinite = errors.New("vector has non-finite components")

// FileChunks is one file's embedded chunks, the unit handed to Rank.
type FileChunks struct {
	Path   string
	Chunks []types.Chunk
}

// SkippedChunk records a chunk that could not be scored.
type SkippedChunk struct {
	Path string
	Line int
	Err  error
}

// RankStats summarizes a ranking pass.
type RankStats struct {
	Scored     int
	BelowFloor int
	Skipped    []SkippedChunk
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [-1, 1]. Sums are accumulated in float64.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", types.ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dotProduct += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, types.ErrZeroVector
	}

	sim := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, ErrNonFinite
	}
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return float32(sim), nil
}

// Rank scores every chunk against query and returns those scoring strictly
// above floor, best first. Equal scores keep file order, then chunk order.
// Chunks that cannot be scored are reported in RankStats and left out.
func Rank(query []float32, files []FileChunks, floor float32) ([]types.RankedResult, RankStats) {
	var stats RankStats
	results := make([]types.RankedResult, 0)

	for _, f := range files {
		for _, chunk := range f.Chunks {
			sim, err := CosineSimilarity(query, chunk.Embedding)
			if err != nil {
				stats.Skipped = append(stats.Skipped, SkippedChunk{
					Path: f.Path,
					Line: chunk.StartLine,
					Err:  err,
				})
				continue
			}
			stats.Scored++
			// a NaN floor keeps nothing
			if !(sim > floor) {
				stats.BelowFloor++
				continue
			}
			results = append(results, types.RankedResult{
				FilePath:   f.Path,
				Chunk:      chunk,
				Similarity: sim,
			})
		}
	}

	sortResults(results)
	return results, stats
}

// sortResults sorts results by similarity in descending order, keeping the
// relative order of ties
func sortResults(results []types.RankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}
