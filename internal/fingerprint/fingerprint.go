// Package fingerprint computes content digests used to key the embedding cache.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Fingerprint is the SHA-256 digest of a file's raw bytes.
// Byte-identical content always produces the same Fingerprint.
type Fingerprint [Size]byte

// Of computes the fingerprint of data.
func Of(data []byte) Fingerprint {
	return Fingerprint(sha256.Sum256(data))
}

// OfString computes the fingerprint of s.
func OfString(s string) Fingerprint {
	return Of([]byte(s))
}

// Parse decodes a lowercase hex digest as produced by String.
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	if len(s) != Size*2 {
		return fp, fmt.Errorf("invalid fingerprint length %d", len(s))
	}
	if _, err := hex.Decode(fp[:], []byte(s)); err != nil {
		return fp, fmt.Errorf("invalid fingerprint: %w", err)
	}
	return fp, nil
}

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether f is the zero value.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}
