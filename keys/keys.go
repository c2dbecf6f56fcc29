// Package keys holds validator signing keys: the encrypted on-disk keystore,
// the in-memory keyring built from it at startup and the Signer interface the
// bridge and rollup sign through.
package keys

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"go.uber.org/zap/zapcore"
)

// ErrUnknownKey is returned when a locator does not name a loaded key.
var ErrUnknownKey = errors.New("keys: unknown key")

// Locator names a key held by a signing backend.
type Locator string

// SignRequest asks a backend to produce a BIP-340 signature over Digest.
type SignRequest struct {
	Locator Locator
	Digest  [32]byte
	// KeyPath requests a taproot key-path signature: the key is tweaked with
	// TapTweak before signing. TapTweak is the script root, empty for BIP-86
	// outputs without a script tree.
	KeyPath  bool
	TapTweak []byte
}

// Signer signs digests with keys it holds without exposing them.
type Signer interface {
	PublicKey(Locator) (*btcec.PublicKey, error)
	Sign(context.Context, SignRequest) ([]byte, error)
}

// XOnly returns the 32 byte BIP-340 encoding of pub.
func XOnly(pub *btcec.PublicKey) []byte {
	return schnorr.SerializePubKey(pub)
}

// ParseXOnly parses a 32 byte x-only public key.
func ParseXOnly(b []byte) (*btcec.PublicKey, error) {
	pub, err := schnorr.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parse x-only key %x: %w", b, err)
	}
	return pub, nil
}

// Verify checks a BIP-340 signature over digest against an x-only key.
func Verify(xonly []byte, digest []byte, sig []byte) bool {
	pub, err := schnorr.ParsePubKey(xonly)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false
	}
	return parsed.Verify(digest, pub)
}

// KeyPathAddress returns the BIP-86 single key P2TR address of pub. Funds
// sent there are spent with a KeyPath request and an empty TapTweak.
func KeyPathAddress(pub *btcec.PublicKey, net *chaincfg.Params) (*btcutil.AddressTaproot, error) {
	output := txscript.ComputeTaprootKeyNoScript(pub)
	return btcutil.NewAddressTaproot(schnorr.SerializePubKey(output), net)
}

func sign(priv *btcec.PrivateKey, req SignRequest) ([]byte, error) {
	if req.KeyPath {
		priv = txscript.TweakTaprootPrivKey(*priv, req.TapTweak)
	}
	sig, err := schnorr.Sign(priv, req.Digest[:])
	if err != nil {
		return nil, fmt.Errorf("sign with %s: %w", req.Locator, err)
	}
	return sig.Serialize(), nil
}

// Keyring is the process-lifetime set of decrypted validator keys.
// It is built once at startup and never written back to disk.
type Keyring struct {
	keys map[Locator]*btcec.PrivateKey
}

// NewKeyring wraps already decrypted keys.
func NewKeyring(keys map[Locator]*btcec.PrivateKey) *Keyring {
	kr := &Keyring{keys: make(map[Locator]*btcec.PrivateKey, len(keys))}
	for loc, k := range keys {
		kr.keys[loc] = k
	}
	return kr
}

// Locators returns the loaded locators in sorted order.
func (kr *Keyring) Locators() []Locator {
	rst := make([]Locator, 0, len(kr.keys))
	for loc := range kr.keys {
		rst = append(rst, loc)
	}
	sort.Slice(rst, func(i, j int) bool { return rst[i] < rst[j] })
	return rst
}

// PublicKey implements Signer.
func (kr *Keyring) PublicKey(loc Locator) (*btcec.PublicKey, error) {
	priv, ok := kr.keys[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, loc)
	}
	return priv.PubKey(), nil
}

// Sign implements Signer.
func (kr *Keyring) Sign(_ context.Context, req SignRequest) ([]byte, error) {
	priv, ok := kr.keys[req.Locator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, req.Locator)
	}
	return sign(priv, req)
}

// String prints locators with their x-only public keys.
func (kr *Keyring) String() string {
	var b strings.Builder
	for i, loc := range kr.Locators() {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", loc, hex.EncodeToString(XOnly(kr.keys[loc].PubKey())))
	}
	return b.String()
}

// MarshalLogObject renders public keys only.
func (kr *Keyring) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, loc := range kr.Locators() {
		enc.AddString(string(loc), hex.EncodeToString(XOnly(kr.keys[loc].PubKey())))
	}
	return nil
}
