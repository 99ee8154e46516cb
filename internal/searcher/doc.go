// Package searcher ranks file chunks by semantic similarity to a query.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(emb, indexer.New(store, emb), &files.Lister{})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Root:  ".",
//	    Query: "fast animal",
//	    Floor: searcher.DefaultFloor,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("%s:%d %.4f\n", r.FilePath, r.Line(), r.Similarity)
//	}
//
// # Pipeline
//
//  1. Embed the query. Failure here aborts the search.
//  2. List candidate files through the Lister.
//  3. Index them with the indexer, reusing cached chunks where the content
//     is unchanged.
//  4. Rank every chunk of every file by cosine similarity to the query.
//
// # Ranking
//
// Rank keeps chunks scoring strictly above the floor and sorts them by
// similarity, best first. The sort is stable and its input is in file order
// then chunk order, so equal scores always come out in the same order.
//
// Chunks whose vectors have a different dimension from the query, or have
// zero magnitude, cannot be scored. They are left out, counted in
// RankStats.Skipped and logged as warnings.
//
// # Comparison
//
// Compare embeds two texts in one batch and returns their similarity.
package searcher
