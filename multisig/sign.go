package multisig

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/keys"
)

// Signatures maps hex x-only committee keys to BIP-340 signatures.
type Signatures map[string][]byte

// SigHash returns the tapscript signature hash for input idx spending the
// committee leaf.
func (d *Descriptor) SigHash(tx *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher) ([32]byte, error) {
	var digest [32]byte
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	h, err := txscript.CalcTapscriptSignaturehash(
		sigHashes, txscript.SigHashDefault, tx, idx, fetcher, d.Leaf,
	)
	if err != nil {
		return digest, fmt.Errorf("tapscript sighash: %w", err)
	}
	copy(digest[:], h)
	return digest, nil
}

// Collect asks signer for signatures over digest with each locator in turn and
// stops once the threshold is met. A failing or foreign locator is logged and
// skipped.
func (d *Descriptor) Collect(
	ctx context.Context,
	logger *zap.Logger,
	signer keys.Signer,
	locators []keys.Locator,
	digest [32]byte,
) (Signatures, error) {
	sigs := Signatures{}
	for _, loc := range locators {
		if len(sigs) >= d.Threshold {
			break
		}
		pub, err := signer.PublicKey(loc)
		if err != nil {
			logger.Warn("committee key unavailable", zap.String("locator", string(loc)), zap.Error(err))
			continue
		}
		xonly := keys.XOnly(pub)
		if _, ok := d.Index(xonly); !ok {
			logger.Warn("key is not a committee member", zap.String("locator", string(loc)))
			continue
		}
		sig, err := signer.Sign(ctx, keys.SignRequest{Locator: loc, Digest: digest})
		if err != nil {
			logger.Warn("committee signer failed", zap.String("locator", string(loc)), zap.Error(err))
			continue
		}
		sigs[hex.EncodeToString(xonly)] = sig
	}
	if len(sigs) < d.Threshold {
		return nil, fmt.Errorf("%w: %d of %d", ErrNotEnoughSignatures, len(sigs), d.Threshold)
	}
	return sigs, nil
}

// Witness assembles the script-path witness: one stack item per committee key
// in reverse key order (empty for keys that did not sign), then the script and
// the control block. Signatures that do not verify against digest are dropped.
func (d *Descriptor) Witness(sigs Signatures, digest [32]byte) (wire.TxWitness, error) {
	items := make([][]byte, len(d.Keys))
	valid := 0
	for i, k := range d.Keys {
		sig, ok := sigs[hex.EncodeToString(k)]
		if !ok || !keys.Verify(k, digest[:], sig) {
			items[i] = []byte{}
			continue
		}
		items[i] = sig
		valid++
	}
	for k := range sigs {
		raw, err := hex.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCommitteeKey, k)
		}
		if _, ok := d.Index(raw); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCommitteeKey, k)
		}
	}
	if valid < d.Threshold {
		return nil, fmt.Errorf("%w: %d valid of %d", ErrNotEnoughSignatures, valid, d.Threshold)
	}
	witness := make(wire.TxWitness, 0, len(d.Keys)+2)
	for i := len(items) - 1; i >= 0; i-- {
		witness = append(witness, items[i])
	}
	witness = append(witness, bytes.Clone(d.Script), bytes.Clone(d.ControlBlock))
	return witness, nil
}

// PSBTInput fills the taproot fields a cosigner needs to sign input idx.
func (d *Descriptor) PSBTInput(packet *psbt.Packet, idx int, utxo *wire.TxOut) {
	in := &packet.Inputs[idx]
	in.WitnessUtxo = utxo
	in.TaprootInternalKey = keys.XOnly(d.InternalKey)
	in.TaprootMerkleRoot = bytes.Clone(d.MerkleRoot)
	in.TaprootLeafScript = []*psbt.TaprootTapLeafScript{{
		ControlBlock: bytes.Clone(d.ControlBlock),
		Script:       bytes.Clone(d.Script),
		LeafVersion:  d.Leaf.LeafVersion,
	}}
}

// AddSignatures records partial signatures on input idx.
func (d *Descriptor) AddSignatures(packet *psbt.Packet, idx int, sigs Signatures) error {
	in := &packet.Inputs[idx]
	leafHash := d.Leaf.TapHash()
	for k, sig := range sigs {
		raw, err := hex.DecodeString(k)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownCommitteeKey, k)
		}
		in.TaprootScriptSpendSig = append(in.TaprootScriptSpendSig, &psbt.TaprootScriptSpendSig{
			XOnlyPubKey: raw,
			LeafHash:    leafHash[:],
			Signature:   sig,
			SigHash:     txscript.SigHashDefault,
		})
	}
	return nil
}

// Finalize builds the witness of input idx from its partial signatures.
func (d *Descriptor) Finalize(packet *psbt.Packet, idx int, digest [32]byte) error {
	in := &packet.Inputs[idx]
	sigs := Signatures{}
	for _, s := range in.TaprootScriptSpendSig {
		sigs[hex.EncodeToString(s.XOnlyPubKey)] = s.Signature
	}
	witness, err := d.Witness(sigs, digest)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := psbt.WriteTxWitness(&buf, witness); err != nil {
		return fmt.Errorf("serialize witness: %w", err)
	}
	in.FinalScriptWitness = buf.Bytes()
	in.TaprootScriptSpendSig = nil
	in.TaprootLeafScript = nil
	return nil
}

// VerifyInput runs the script engine over input idx of a fully signed tx.
func VerifyInput(tx *wire.MsgTx, idx int, fetcher txscript.PrevOutputFetcher) error {
	prev := fetcher.FetchPrevOutput(tx.TxIn[idx].PreviousOutPoint)
	if prev == nil {
		return fmt.Errorf("missing previous output for input %d", idx)
	}
	vm, err := txscript.NewEngine(
		prev.PkScript, tx, idx, txscript.StandardVerifyFlags, nil,
		txscript.NewTxSigHashes(tx, fetcher), prev.Value, fetcher,
	)
	if err != nil {
		return fmt.Errorf("script engine: %w", err)
	}
	if err := vm.Execute(); err != nil {
		return fmt.Errorf("execute input %d: %w", idx, err)
	}
	return nil
}
