// Package codec wraps go-scale for values persisted in the kvstore and for
// fraud proof bundles.
package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/spacemeshos/go-scale"
)

var buffers = sync.Pool{
	New: func() any { return bytes.NewBuffer(make([]byte, 0, 128)) },
}

// Encode returns the scale encoding of value.
func Encode(value scale.Encodable) ([]byte, error) {
	buf := buffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		buffers.Put(buf)
	}()
	if _, err := value.EncodeScale(scale.NewEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode %T: %w", value, err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

// Decode fills value from data. Every byte of data must be consumed.
func Decode(data []byte, value scale.Decodable) error {
	n, err := value.DecodeScale(scale.NewDecoder(bytes.NewReader(data)))
	if err != nil {
		return fmt.Errorf("decode %T: %w", value, err)
	}
	if n != len(data) {
		return fmt.Errorf("decode %T: %d trailing bytes", value, len(data)-n)
	}
	return nil
}
