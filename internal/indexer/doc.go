// Package indexer turns a list of files into embedded chunks.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb)
//
//	result, err := idx.IndexFiles(ctx, paths, &indexer.Config{Workers: 8})
//	if err != nil {
//	    return err // context cancelled
//	}
//	fmt.Printf("%d files, %d from cache\n",
//	    result.Stats.FilesIndexed, result.Stats.CacheHits)
//
// # Pipeline
//
// Each file runs independently on a bounded worker pool:
//
//  1. Read: unreadable and non-UTF-8 files are skipped
//  2. Cache lookup: the content fingerprint selects an entry in the cache store
//  3. On a miss the text is chunked and all chunks go to the embedder in one
//     batched request; the result is written back to the cache
//
// # Error Handling
//
// A file that cannot be read or embedded is recorded with StatusSkipped or
// StatusFailed and logged; the run continues. Only context cancellation
// makes IndexFiles return an error.
//
// # Ordering
//
// Result.Files has exactly one entry per input path, in input order,
// regardless of which worker finished first.
//
// # Concurrency
//
// Identical content in several files is embedded once: the cache store
// collapses concurrent requests for the same fingerprint.
//
// IndexLock offers a non-blocking guard for callers that must not run two
// builds at once.
package indexer
