// Package hash provides the hashing primitives used for account ids,
// transaction hashes and state commitments.
package hash

import (
	stdhash "hash"
	"sync"

	"github.com/minio/sha256-simd"
)

// Size of a digest in bytes.
const Size = sha256.Size

// Sum hashes a single buffer.
var Sum = sha256.Sum256

// merkle nodes and signing messages are hashed in bursts.
var hashers = sync.Pool{
	New: func() any { return sha256.New() },
}

// Sum256 hashes the concatenation of chunks without copying them into a
// single buffer first.
func Sum256(chunks ...[]byte) (rst [Size]byte) {
	hh := hashers.Get().(stdhash.Hash)
	defer hashers.Put(hh)
	hh.Reset()
	for _, chunk := range chunks {
		hh.Write(chunk)
	}
	hh.Sum(rst[:0])
	return rst
}
