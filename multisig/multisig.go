// Package multisig derives the committee's 2-of-3 taproot script-path
// address and assembles witnesses that spend from it.
package multisig

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"go.uber.org/zap/zapcore"
)

const (
	// Participants is the committee size.
	Participants = 3
	// Threshold is the number of signatures required to spend.
	Threshold = 2

	// numsKeyHex is the BIP-341 "nothing up my sleeve" point H. Nobody knows
	// its discrete log, so outputs using it as internal key are script-path only.
	numsKeyHex = "50929b74c1a04954b78b4b6035e97a5e078a5a0f28ec96d547bfee9ace803ac0"
)

var (
	ErrKeyCount            = errors.New("multisig: exactly 3 keys are required")
	ErrDuplicateKey        = errors.New("multisig: duplicate key")
	ErrInvalidKey          = errors.New("multisig: invalid x-only key")
	ErrNotEnoughSignatures = errors.New("multisig: not enough signatures")
	ErrUnknownCommitteeKey = errors.New("multisig: key is not a committee member")
)

// NUMSKey returns the BIP-341 unspendable internal key.
func NUMSKey() *btcec.PublicKey {
	raw, _ := hex.DecodeString(numsKeyHex)
	key, err := schnorr.ParsePubKey(raw)
	if err != nil {
		panic(err)
	}
	return key
}

type config struct {
	firstKeyInternal bool
}

// Opt configures Derive.
type Opt func(*config)

// WithFirstKeyInternal uses the first sorted committee key as taproot internal
// key instead of the NUMS point. The holder of that key alone can then spend
// through the key path.
func WithFirstKeyInternal() Opt {
	return func(c *config) {
		c.firstKeyInternal = true
	}
}

// Descriptor is the immutable 2-of-3 committee output description.
type Descriptor struct {
	// Keys are the x-only committee keys in ascending byte order.
	Keys         [][]byte
	Threshold    int
	Script       []byte
	Leaf         txscript.TapLeaf
	InternalKey  *btcec.PublicKey
	OutputKey    *btcec.PublicKey
	MerkleRoot   []byte
	ControlBlock []byte
	Address      *btcutil.AddressTaproot
	PkScript     []byte
}

// Derive builds the descriptor from three x-only keys given in any order.
// The result is byte for byte identical for any permutation of the keys.
func Derive(keys [][]byte, net *chaincfg.Params, opts ...Opt) (*Descriptor, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(keys) != Participants {
		return nil, fmt.Errorf("%w: got %d", ErrKeyCount, len(keys))
	}
	sorted := make([][]byte, len(keys))
	for i, k := range keys {
		if _, err := schnorr.ParsePubKey(k); err != nil {
			return nil, fmt.Errorf("%w: %x: %v", ErrInvalidKey, k, err)
		}
		sorted[i] = bytes.Clone(k)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if bytes.Equal(sorted[i-1], sorted[i]) {
			return nil, fmt.Errorf("%w: %x", ErrDuplicateKey, sorted[i])
		}
	}

	script, err := thresholdScript(sorted, Threshold)
	if err != nil {
		return nil, err
	}
	leaf := txscript.NewBaseTapLeaf(script)
	tree := txscript.AssembleTaprootScriptTree(leaf)
	root := tree.RootNode.TapHash()

	internal := NUMSKey()
	if cfg.firstKeyInternal {
		internal, _ = schnorr.ParsePubKey(sorted[0])
	}
	output := txscript.ComputeTaprootOutputKey(internal, root[:])

	ctrl := tree.LeafMerkleProofs[0].ToControlBlock(internal)
	ctrlBytes, err := ctrl.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize control block: %w", err)
	}
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(output), net)
	if err != nil {
		return nil, fmt.Errorf("taproot address: %w", err)
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("taproot pkscript: %w", err)
	}
	return &Descriptor{
		Keys:         sorted,
		Threshold:    Threshold,
		Script:       script,
		Leaf:         leaf,
		InternalKey:  internal,
		OutputKey:    output,
		MerkleRoot:   root[:],
		ControlBlock: ctrlBytes,
		Address:      addr,
		PkScript:     pkScript,
	}, nil
}

// thresholdScript is <k1> CHECKSIG <k2> CHECKSIGADD <k3> CHECKSIGADD <m> NUMEQUAL.
func thresholdScript(keys [][]byte, m int) ([]byte, error) {
	b := txscript.NewScriptBuilder()
	for i, k := range keys {
		b.AddData(k)
		if i == 0 {
			b.AddOp(txscript.OP_CHECKSIG)
		} else {
			b.AddOp(txscript.OP_CHECKSIGADD)
		}
	}
	b.AddInt64(int64(m))
	b.AddOp(txscript.OP_NUMEQUAL)
	script, err := b.Script()
	if err != nil {
		return nil, fmt.Errorf("build threshold script: %w", err)
	}
	return script, nil
}

// String returns the bech32m address.
func (d *Descriptor) String() string {
	return d.Address.EncodeAddress()
}

// Index returns the position of an x-only key in the sorted committee.
func (d *Descriptor) Index(xonly []byte) (int, bool) {
	for i, k := range d.Keys {
		if bytes.Equal(k, xonly) {
			return i, true
		}
	}
	return 0, false
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (d *Descriptor) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("address", d.String())
	enc.AddInt("threshold", d.Threshold)
	enc.AddString("script", hex.EncodeToString(d.Script))
	enc.AddString("internal_key", hex.EncodeToString(schnorr.SerializePubKey(d.InternalKey)))
	for i, k := range d.Keys {
		enc.AddString(fmt.Sprintf("key%d", i+1), hex.EncodeToString(k))
	}
	return nil
}
