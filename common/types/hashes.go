package types

import (
	"encoding/hex"
	"fmt"

	"github.com/btcl2/l2node/hash"
)

// Hash32Length is the length of a sha256 digest.
const Hash32Length = 32

// Hash32 is a 32-byte sha256 digest.
type Hash32 [Hash32Length]byte

// GenesisRoot is the previous state root of the first batch.
var GenesisRoot = CalcHash32([]byte("l2node/genesis-state-root"))

// CalcHash32 hashes the concatenation of the chunks.
func CalcHash32(chunks ...[]byte) Hash32 {
	return Hash32(hash.Sum256(chunks...))
}

// BytesToHash32 copies b into a hash, left-truncating if b is longer.
func BytesToHash32(b []byte) Hash32 {
	var h Hash32
	if len(b) > len(h) {
		b = b[len(b)-Hash32Length:]
	}
	copy(h[Hash32Length-len(b):], b)
	return h
}

// Bytes returns the hash as a slice.
func (h Hash32) Bytes() []byte { return h[:] }

// Hex returns the lowercase hex encoding.
func (h Hash32) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash32) String() string { return h.Hex() }

// ShortString returns the first 10 hex characters, for logging.
func (h Hash32) ShortString() string { return h.Hex()[:10] }

// IsZero is true for the all-zero hash.
func (h Hash32) IsZero() bool { return h == Hash32{} }

// MarshalText encodes the hash as hex.
func (h Hash32) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText decodes a hex encoded hash.
func (h *Hash32) UnmarshalText(text []byte) error {
	if len(text) != 2*Hash32Length {
		return fmt.Errorf("invalid hash length %d", len(text))
	}
	_, err := hex.Decode(h[:], text)
	return err
}

// HexToHash32 parses a hex encoded hash.
func HexToHash32(s string) (Hash32, error) {
	var h Hash32
	err := h.UnmarshalText([]byte(s))
	return h, err
}
