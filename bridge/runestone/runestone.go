// Package runestone encodes the token transfer marker carried in an
// OP_RETURN output: OP_RETURN OP_13 followed by data pushes whose
// concatenation is a sequence of LEB128 integers.
package runestone

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"
	"github.com/multiformats/go-varint"
)

const (
	// TagBody starts the edict list. Everything after it is edicts.
	TagBody uint64 = 0
	// TagPointer names the output receiving unallocated tokens.
	TagPointer uint64 = 22

	// magic is the opcode following OP_RETURN.
	magic = txscript.OP_13
	// maxPush is the largest standard data push.
	maxPush = txscript.MaxScriptElementSize
)

var (
	// ErrNotRunestone is returned for scripts that are not a marker at all.
	ErrNotRunestone = errors.New("runestone: not a runestone")
	// ErrMalformed is returned for markers that do not decode.
	ErrMalformed = errors.New("runestone: malformed")
)

// ID names a token by the block height and index of its etching transaction.
type ID struct {
	Block uint64
	Tx    uint32
}

// ParseID parses "block:tx".
func ParseID(s string) (ID, error) {
	block, tx, ok := strings.Cut(s, ":")
	if !ok {
		return ID{}, fmt.Errorf("token id %q: expected block:tx", s)
	}
	b, err := strconv.ParseUint(block, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("token id %q: %w", s, err)
	}
	t, err := strconv.ParseUint(tx, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("token id %q: %w", s, err)
	}
	return ID{Block: b, Tx: uint32(t)}, nil
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

// Less orders ids by block then tx.
func (id ID) Less(other ID) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Tx < other.Tx
}

// Edict moves Amount of token ID to output Output.
type Edict struct {
	ID     ID
	Amount uint64
	Output uint32
}

// Runestone is a decoded marker.
type Runestone struct {
	Edicts  []Edict
	Pointer *uint32
}

// Script renders the marker as an OP_RETURN script.
func (r *Runestone) Script() ([]byte, error) {
	payload := r.payload()
	b := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddOp(magic)
	for len(payload) > 0 {
		n := min(len(payload), maxPush)
		b.AddFullData(payload[:n])
		payload = payload[n:]
	}
	return b.Script()
}

func (r *Runestone) payload() []byte {
	var buf []byte
	put := func(v uint64) {
		buf = append(buf, varint.ToUvarint(v)...)
	}
	if r.Pointer != nil {
		put(TagPointer)
		put(uint64(*r.Pointer))
	}
	if len(r.Edicts) == 0 {
		return buf
	}
	edicts := append([]Edict(nil), r.Edicts...)
	sort.SliceStable(edicts, func(i, j int) bool {
		return edicts[i].ID.Less(edicts[j].ID)
	})
	put(TagBody)
	var prev ID
	for _, e := range edicts {
		// Ids are delta encoded: the tx index is absolute when the block changes.
		blockDelta := e.ID.Block - prev.Block
		txDelta := uint64(e.ID.Tx)
		if blockDelta == 0 {
			txDelta = uint64(e.ID.Tx - prev.Tx)
		}
		put(blockDelta)
		put(txDelta)
		put(e.Amount)
		put(uint64(e.Output))
		prev = e.ID
	}
	return buf
}

// Decode parses an OP_RETURN script. Scripts that are not OP_RETURN OP_13
// return ErrNotRunestone.
func Decode(script []byte) (*Runestone, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, ErrNotRunestone
	}
	if !tokenizer.Next() || tokenizer.Opcode() != magic {
		return nil, ErrNotRunestone
	}
	var payload bytes.Buffer
	for tokenizer.Next() {
		if tokenizer.Opcode() > txscript.OP_PUSHDATA4 {
			return nil, fmt.Errorf("%w: opcode %d in payload", ErrMalformed, tokenizer.Opcode())
		}
		payload.Write(tokenizer.Data())
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return decodePayload(payload.Bytes())
}

func decodePayload(buf []byte) (*Runestone, error) {
	var ints []uint64
	for len(buf) > 0 {
		v, n, err := varint.FromUvarint(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ints = append(ints, v)
		buf = buf[n:]
	}

	r := &Runestone{}
	i := 0
	for ; i < len(ints); i += 2 {
		tag := ints[i]
		if tag == TagBody {
			i++
			break
		}
		if i+1 >= len(ints) {
			return nil, fmt.Errorf("%w: tag %d without value", ErrMalformed, tag)
		}
		if tag == TagPointer {
			if ints[i+1] > uint64(^uint32(0)) {
				return nil, fmt.Errorf("%w: pointer %d", ErrMalformed, ints[i+1])
			}
			p := uint32(ints[i+1])
			r.Pointer = &p
		}
		// Other fields carry etching and minting data and are ignored.
	}
	body := ints[min(i, len(ints)):]
	if len(body)%4 != 0 {
		return nil, fmt.Errorf("%w: trailing edict integers", ErrMalformed)
	}
	var prev ID
	for j := 0; j < len(body); j += 4 {
		id := ID{Block: prev.Block + body[j]}
		if id.Block < prev.Block {
			return nil, fmt.Errorf("%w: block overflow", ErrMalformed)
		}
		tx := body[j+1]
		if body[j] == 0 {
			tx += uint64(prev.Tx)
		}
		if tx > uint64(^uint32(0)) || body[j+3] > uint64(^uint32(0)) {
			return nil, fmt.Errorf("%w: edict out of range", ErrMalformed)
		}
		id.Tx = uint32(tx)
		r.Edicts = append(r.Edicts, Edict{ID: id, Amount: body[j+2], Output: uint32(body[j+3])})
		prev = id
	}
	return r, nil
}

// Allocated returns the amount of token moved to output by explicit edicts.
func (r *Runestone) Allocated(token ID, output uint32) uint64 {
	var total uint64
	for _, e := range r.Edicts {
		if e.ID == token && e.Output == output {
			total += e.Amount
		}
	}
	return total
}
