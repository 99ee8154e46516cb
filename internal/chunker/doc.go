// Package chunker divides file text into token-bounded segments for embedding.
//
// Segments are cut at the coarsest boundary that keeps them within the token
// budget: blank lines first, then single newlines, sentence ends, whitespace,
// and finally individual runes. Adjacent small pieces are merged back together
// so segments are as large as the budget allows.
//
// # Basic Usage
//
//	c := chunker.New(100, chunker.HeuristicTokenizer{})
//	for _, seg := range c.Split(text) {
//	    fmt.Printf("line %d: %q\n", seg.StartLine, seg.Text)
//	}
//
// # Line Accounting
//
// StartLine is 1-based and equals one plus the number of newlines in all text
// that precedes the segment. Text with no newlines reports line 1 for every
// segment. Whitespace-only segments are not returned, but their newlines are
// still counted, so the numbering always matches the original file.
//
// # Tokenizers
//
// Token counting is pluggable. HeuristicTokenizer estimates chars/4 and needs
// nothing else. TiktokenTokenizer counts real BPE tokens:
//
//	tok, err := chunker.NewTokenizer("cl100k_base")
//	if err != nil {
//	    tok = chunker.HeuristicTokenizer{}
//	}
//
// Changing the tokenizer or budget changes chunk boundaries. Cached entries are
// keyed by content only, so clear the cache after changing either.
package chunker
