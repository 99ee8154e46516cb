// Package cache persists embedded chunk lists on disk, one file per unique
// file content.
//
// An entry is named by the hex SHA-256 of the raw file bytes plus ".cache"
// and holds the chunk list in a compact binary layout (see MarshalChunks).
// The key ignores the embedding model and chunk size. Entries built with a
// different model stay in place until the cache is cleared.
//
// Usage:
//
//	store, err := cache.NewStore(dir, chunker.New(100, nil))
//	if err != nil {
//	    return err
//	}
//	chunks, outcome, err := store.GetOrCompute(ctx, path, data, embed)
//
// Unreadable or corrupt entries are discarded and rebuilt. A cache directory
// that cannot be created or written degrades to an uncached run.
package cache
