package cache

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/dshills/csep/pkg/types"
)

// ErrCorrupt marks an entry that cannot be decoded. Old readers see any
// change to the layout below as corruption, since the format is versionless.
var ErrCorrupt = errors.New("corrupt cache entry")

// Entry layout:
//
//	count      varint
//	count × {
//	    startLine  varint
//	    text       ord string
//	    dim        varint
//	    dim × raw float32
//	}

// minChunkSize is the smallest possible encoding of one chunk.
const minChunkSize = 3

// MarshalChunks serializes chunks to the cache entry format.
func MarshalChunks(chunks []types.Chunk) []byte {
	buf := make([]byte, sizeChunks(chunks))
	n := varint.Uint64.Marshal(uint64(len(chunks)), buf)
	for i := range chunks {
		n += marshalChunk(&chunks[i], buf[n:])
	}
	return buf[:n]
}

// UnmarshalChunks decodes a cache entry. The whole payload must be consumed;
// anything else is reported as ErrCorrupt.
func UnmarshalChunks(data []byte) (chunks []types.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	count, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk count: %v", ErrCorrupt, err)
	}
	if count > uint64(len(data)-n)/minChunkSize {
		return nil, fmt.Errorf("%w: chunk count %d exceeds payload", ErrCorrupt, count)
	}

	chunks = make([]types.Chunk, count)
	dim := -1
	for i := range chunks {
		m, err := unmarshalChunk(data[n:], &chunks[i])
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrCorrupt, i, err)
		}
		if err := chunks[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %w", ErrCorrupt, i, err)
		}
		if d := chunks[i].Dimension(); dim >= 0 && d != dim {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, want %d: %w",
				ErrCorrupt, i, d, dim, types.ErrDimensionMismatch)
		}
		dim = chunks[i].Dimension()
		n += m
	}

	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-n)
	}
	return chunks, nil
}

func sizeChunks(chunks []types.Chunk) int {
	size := varint.Uint64.Size(uint64(len(chunks)))
	for i := range chunks {
		c := &chunks[i]
		size += varint.Uint64.Size(uint64(c.StartLine))
		size += ord.String.Size(c.Text)
		size += varint.Uint64.Size(uint64(len(c.Embedding)))
		for _, v := range c.Embedding {
			size += raw.Float32.Size(v)
		}
	}
	return size
}

func marshalChunk(c *types.Chunk, buf []byte) int {
	n := varint.Uint64.Marshal(uint64(c.StartLine), buf)
	n += ord.String.Marshal(c.Text, buf[n:])
	n += varint.Uint64.Marshal(uint64(len(c.Embedding)), buf[n:])
	for _, v := range c.Embedding {
		n += raw.Float32.Marshal(v, buf[n:])
	}
	return n
}

func unmarshalChunk(data []byte, c *types.Chunk) (int, error) {
	line, n, err := varint.Uint64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("start line: %w", err)
	}
	if line > math.MaxInt32 {
		return 0, fmt.Errorf("start line %d out of range", line)
	}

	text, m, err := ord.String.Unmarshal(data[n:])
	if err != nil {
		return 0, fmt.Errorf("text: %w", err)
	}
	n += m
	if !utf8.ValidString(text) {
		return 0, types.ErrNotText
	}

	dim, m, err := varint.Uint64.Unmarshal(data[n:])
	if err != nil {
		return 0, fmt.Errorf("dimension: %w", err)
	}
	n += m
	if dim > uint64(len(data)-n)/4 {
		return 0, fmt.Errorf("dimension %d out of range", dim)
	}

	vec := make([]float32, dim)
	for i := range vec {
		v, m, err := raw.Float32.Unmarshal(data[n:])
		if err != nil {
			return 0, fmt.Errorf("vector[%d]: %w", i, err)
		}
		vec[i] = v
		n += m
	}

	c.StartLine = int(line)
	c.Text = text
	c.Embedding = vec
	return n, nil
}
