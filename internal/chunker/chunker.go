package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxTokens is the per-chunk token budget
const DefaultMaxTokens = 100

// boundaries lists split points from coarsest to finest. Each separator stays
// attached to the text before it so chunks concatenate back to the input.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? ", "; "},
	{" ", "\t"},
}

// Segment is a piece of file text and the 1-based line it starts on.
type Segment struct {
	Text      string
	StartLine int
}

// Chunker splits text into token-bounded segments at semantic boundaries
type Chunker struct {
	maxTokens int
	tokenizer Tokenizer
}

// New creates a Chunker. Non-positive maxTokens and a nil tokenizer fall back
// to DefaultMaxTokens and HeuristicTokenizer.
func New(maxTokens int, tokenizer Tokenizer) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if tokenizer == nil {
		tokenizer = HeuristicTokenizer{}
	}
	return &Chunker{
		maxTokens: maxTokens,
		tokenizer: tokenizer,
	}
}

// MaxTokens returns the per-segment token budget.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Split divides text into ordered, non-overlapping segments. Blank
// segments are dropped but their newlines still advance StartLine.
func (c *Chunker) Split(text string) []Segment {
	if text == "" {
		return nil
	}

	pieces := c.split(text, 0)
	segments := make([]Segment, 0, len(pieces))
	line := 1
	for _, piece := range pieces {
		if strings.TrimSpace(piece) != "" {
			segments = append(segments, Segment{Text: piece, StartLine: line})
		}
		line += strings.Count(piece, "\n")
	}
	return segments
}

// Texts returns just the segment texts, in order.
func Texts(segments []Segment) []string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return texts
}

func (c *Chunker) fits(text string) bool {
	return c.tokenizer.CountTokens(text) <= c.maxTokens
}

// split recursively breaks text at boundaries[level] and finer, then merges
// neighbouring pieces back up to the budget.
func (c *Chunker) split(text string, level int) []string {
	if c.fits(text) {
		return []string{text}
	}
	if level >= len(boundaries) {
		return c.splitRunes(text)
	}

	parts := splitAfterAny(text, boundaries[level])
	if len(parts) == 1 {
		return c.split(text, level+1)
	}

	pieces := make([]string, 0, len(parts))
	for _, part := range parts {
		if c.fits(part) {
			pieces = append(pieces, part)
			continue
		}
		pieces = append(pieces, c.split(part, level+1)...)
	}
	return c.merge(pieces)
}

// merge greedily joins adjacent pieces while the result fits.
func (c *Chunker) merge(pieces []string) []string {
	merged := make([]string, 0, len(pieces))
	var cur strings.Builder
	for _, piece := range pieces {
		if cur.Len() > 0 && !c.fits(cur.String()+piece) {
			merged = append(merged, cur.String())
			cur.Reset()
		}
		cur.WriteString(piece)
	}
	if cur.Len() > 0 {
		merged = append(merged, cur.String())
	}
	return merged
}

// splitRunes is the last resort for text with no usable boundary, such as a
// long minified line. Every piece holds at least one rune.
func (c *Chunker) splitRunes(text string) []string {
	var out []string
	start := 0
	for start < len(text) {
		end := start
		for end < len(text) {
			_, size := utf8.DecodeRuneInString(text[end:])
			if end > start && !c.fits(text[start:end+size]) {
				break
			}
			end += size
		}
		out = append(out, text[start:end])
		start = end
	}
	return out
}

// splitAfterAny cuts text after every occurrence of any separator.
func splitAfterAny(text string, seps []string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(text); {
		matched := 0
		for _, sep := range seps {
			if strings.HasPrefix(text[i:], sep) {
				matched = len(sep)
				break
			}
		}
		if matched == 0 {
			i++
			continue
		}
		i += matched
		parts = append(parts, text[start:i])
		start = i
	}
	if start < len(text) {
		parts = append(parts, text[start:])
	}
	return parts
}
