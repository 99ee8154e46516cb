package chunker

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// TokenizerHeuristic selects the chars/4 estimate
	TokenizerHeuristic = "heuristic"

	// DefaultEncoding is the BPE encoding used by OpenAI embedding models
	DefaultEncoding = "cl100k_base"

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Tokenizer counts model tokens in a string.
type Tokenizer interface {
	CountTokens(text string) int
}

// HeuristicTokenizer estimates tokens as ceil(bytes/4). It needs no model
// files and is stable across runs, which keeps chunk boundaries reproducible.
type HeuristicTokenizer struct{}

// CountTokens implements Tokenizer.
func (HeuristicTokenizer) CountTokens(text string) int {
	return (len(text) + TokensPerChar - 1) / TokensPerChar
}

// TiktokenTokenizer counts BPE tokens with tiktoken-go.
type TiktokenTokenizer struct {
	mu  sync.Mutex // Encode is not documented as safe for concurrent use
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named BPE encoding.
// The first load may download the ranks file into TIKTOKEN_CACHE_DIR.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// CountTokens implements Tokenizer.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.enc.Encode(text, nil, nil))
}

// NewTokenizer returns the tokenizer for a config name: "heuristic" (or empty)
// for the estimate, anything else is treated as a tiktoken encoding name.
func NewTokenizer(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", TokenizerHeuristic:
		return HeuristicTokenizer{}, nil
	default:
		return NewTiktokenTokenizer(name)
	}
}
