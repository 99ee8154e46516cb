package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicTokenizer(t *testing.T) {
	tok := HeuristicTokenizer{}
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"the quick brown fox", 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tok.CountTokens(tt.text), "text %q", tt.text)
	}
}

func TestNewTokenizer_Heuristic(t *testing.T) {
	for _, name := range []string{"", "heuristic", " Heuristic "} {
		tok, err := NewTokenizer(name)
		require.NoError(t, err)
		assert.IsType(t, HeuristicTokenizer{}, tok)
	}
}

func TestNewTokenizer_UnknownEncoding(t *testing.T) {
	_, err := NewTokenizer("no-such-encoding")
	assert.Error(t, err)
}
