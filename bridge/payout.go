package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/bridge/runestone"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/custody"
	"github.com/btcl2/l2node/sql/deposits"
)

// Payout outputs are laid out as destination, marker, change.
const (
	destinationOutput = 0
	markerOutput      = 1
	changeOutput      = 2
)

var (
	errNoCustodyOutput   = errors.New("no confirmed custody output can fund the payout")
	errCustodyUnreadable = errors.New("custody outputs unavailable")
)

// deferred reports whether the payout stopped before a transaction was
// built. The withdrawal stays pending and is retried on a later sweep.
func deferred(err error) bool {
	return errors.Is(err, errNoCustodyOutput) || errors.Is(err, errCustodyUnreadable)
}

// custodyInput is a spendable custody output with the bridged tokens it holds.
type custodyInput struct {
	l1.Unspent
	Tokens *big.Int
}

// payout returns the broadcast txid and the tokens left on its change output.
func (b *Bridge) payout(ctx context.Context, w *types.Withdrawal) (string, *big.Int, error) {
	tx, in, err := b.buildPayout(ctx, w)
	if err != nil {
		return "", nil, err
	}
	prevOut := wire.NewTxOut(in.Value, b.custody.PkScript)
	signed, err := b.signPayout(ctx, tx, prevOut)
	if err != nil {
		return "", nil, err
	}
	txid, err := b.client.SendRawTransaction(ctx, signed)
	if err != nil {
		return "", nil, fmt.Errorf("broadcast %s: %w", signed.TxHash(), err)
	}
	return txid, new(big.Int).Sub(in.Tokens, w.L1Amount), nil
}

// buildPayout spends the largest custody output holding at least the payout
// amount of tokens. The marker moves the payout amount to the destination
// and points leftover tokens at the change output, so custody keeps the rest
// of the bridged supply.
func (b *Bridge) buildPayout(ctx context.Context, w *types.Withdrawal) (*wire.MsgTx, custodyInput, error) {
	if !w.L1Amount.IsUint64() {
		return nil, custodyInput{}, fmt.Errorf("payout amount %s out of range", w.L1Amount)
	}
	dest, err := btcutil.DecodeAddress(w.L1Address, b.ledger.Network())
	if err != nil {
		return nil, custodyInput{}, fmt.Errorf("decode payout address: %w", err)
	}
	destScript, err := txscript.PayToAddrScript(dest)
	if err != nil {
		return nil, custodyInput{}, fmt.Errorf("payout script: %w", err)
	}
	pointer := uint32(changeOutput)
	marker, err := (&runestone.Runestone{
		Edicts: []runestone.Edict{{
			ID:     b.token,
			Amount: w.L1Amount.Uint64(),
			Output: destinationOutput,
		}},
		Pointer: &pointer,
	}).Script()
	if err != nil {
		return nil, custodyInput{}, fmt.Errorf("token marker: %w", err)
	}

	utxo, err := b.selectCustodyOutput(ctx, w.L1Amount)
	if err != nil {
		return nil, custodyInput{}, err
	}
	hash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, custodyInput{}, fmt.Errorf("custody output txid: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(b.cfg.DustValue, destScript))
	tx.AddTxOut(wire.NewTxOut(0, marker))
	tx.AddTxOut(wire.NewTxOut(0, b.custody.PkScript))

	fee := b.fee(ctx, tx)
	change := utxo.Value - b.cfg.DustValue - fee
	if change < b.cfg.DustValue {
		return nil, custodyInput{}, fmt.Errorf("%w: output %s:%d holds %d sat, needs %d",
			errNoCustodyOutput, utxo.TxID, utxo.Vout, utxo.Value, 2*b.cfg.DustValue+fee)
	}
	tx.TxOut[changeOutput].Value = change
	return tx, utxo, nil
}

func (b *Bridge) selectCustodyOutput(ctx context.Context, amount *big.Int) (custodyInput, error) {
	unspent, err := b.client.ListUnspent(ctx, b.custody.String())
	if err != nil {
		return custodyInput{}, fmt.Errorf("%w: list: %w", errCustodyUnreadable, err)
	}
	var (
		best  custodyInput
		found bool
	)
	for _, u := range unspent {
		tokens, err := b.spendableTokens(u)
		if err != nil {
			return custodyInput{}, fmt.Errorf("%w: %w", errCustodyUnreadable, err)
		}
		if tokens == nil || tokens.Cmp(amount) < 0 {
			continue
		}
		if !found || u.Value > best.Value {
			best, found = custodyInput{Unspent: u, Tokens: tokens}, true
		}
	}
	if !found {
		return custodyInput{}, fmt.Errorf("%w: none of %d outputs holds %s tokens",
			errNoCustodyOutput, len(unspent), amount)
	}
	return best, nil
}

// spendableTokens returns the bridged tokens of a custody output that a
// payout may spend, or nil when it may not be spent yet. Deposits become
// spendable once claimed. Change outputs of earlier payouts need as many
// confirmations as a deposit. Outputs the bridge never recorded are skipped.
func (b *Bridge) spendableTokens(u l1.Unspent) (*big.Int, error) {
	if u.Confirmations == 0 {
		return nil, nil
	}
	d, err := deposits.Get(b.db, types.DepositID(u.TxID, u.Vout))
	switch {
	case err == nil && d.Status == types.DepositClaimed:
		return d.Amount, nil
	case err == nil:
		return nil, nil
	case !errors.Is(err, sql.ErrNotFound):
		return nil, err
	}
	change, err := custody.Get(b.db, u.TxID, u.Vout)
	switch {
	case errors.Is(err, sql.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if u.Confirmations < b.cfg.Confirmations {
		return nil, nil
	}
	return change.Tokens, nil
}

// fee prices tx at the estimated rate, assuming the largest witness a
// committee spend can have.
func (b *Bridge) fee(ctx context.Context, tx *wire.MsgTx) int64 {
	rate, err := l1.FeeRate(ctx, b.client, b.cfg.FeeTarget, b.cfg.FallbackFeeRate)
	if err != nil {
		feeFallbacks.Inc()
		b.logger.Warn("fee estimation failed, using fallback rate",
			zap.Float64("rate", rate),
			zap.Error(err),
		)
	}
	sized := tx.Copy()
	witness := make(wire.TxWitness, 0, len(b.custody.Keys)+2)
	for i := range b.custody.Keys {
		if i < b.custody.Threshold {
			witness = append(witness, make([]byte, 64))
		} else {
			witness = append(witness, []byte{})
		}
	}
	witness = append(witness, b.custody.Script, b.custody.ControlBlock)
	sized.TxIn[0].Witness = witness
	return l1.Fee(sized, rate)
}

// signPayout collects committee signatures through a PSBT and returns the
// finalized transaction after checking it against the script engine.
func (b *Bridge) signPayout(ctx context.Context, tx *wire.MsgTx, prevOut *wire.TxOut) (*wire.MsgTx, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	digest, err := b.custody.SigHash(tx, 0, fetcher)
	if err != nil {
		return nil, err
	}
	sigs, err := b.custody.Collect(ctx, b.logger, b.signer, b.committee, digest)
	if err != nil {
		return nil, err
	}
	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("create psbt: %w", err)
	}
	b.custody.PSBTInput(packet, 0, prevOut)
	if err := b.custody.AddSignatures(packet, 0, sigs); err != nil {
		return nil, err
	}
	if err := b.custody.Finalize(packet, 0, digest); err != nil {
		return nil, err
	}
	signed, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("extract payout: %w", err)
	}
	if err := multisig.VerifyInput(signed, 0, fetcher); err != nil {
		return nil, err
	}
	return signed, nil
}
