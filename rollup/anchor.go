package rollup

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/batches"
)

// AnchorTag prefixes every anchor payload.
const AnchorTag = "BL2A"

// AnchorSize is the length of an anchor payload.
const AnchorSize = 32

var errNoFunding = errors.New("no confirmed output can fund the anchor")

// AnchorPayload is the tag followed by the first 28 bytes of root.
func AnchorPayload(root types.Hash32) []byte {
	payload := make([]byte, 0, AnchorSize)
	payload = append(payload, AnchorTag...)
	return append(payload, root[:AnchorSize-len(AnchorTag)]...)
}

// ParseAnchor extracts the truncated root from an OP_RETURN script.
func ParseAnchor(script []byte) ([]byte, bool) {
	pushes, err := txscript.PushedData(script)
	if err != nil || len(script) == 0 || script[0] != txscript.OP_RETURN || len(pushes) != 1 {
		return nil, false
	}
	payload := pushes[0]
	if len(payload) != AnchorSize || !bytes.HasPrefix(payload, []byte(AnchorTag)) {
		return nil, false
	}
	return payload[len(AnchorTag):], true
}

// MatchesAnchor reports whether the truncated root from an anchor belongs to root.
func MatchesAnchor(truncated []byte, root types.Hash32) bool {
	return bytes.Equal(truncated, root[:AnchorSize-len(AnchorTag)])
}

// FundingAddress is the BIP-86 address anchors are paid from.
func (a *Aggregator) FundingAddress() (*btcutil.AddressTaproot, error) {
	pub, err := a.signer.PublicKey(a.key)
	if err != nil {
		return nil, err
	}
	return keys.KeyPathAddress(pub, a.ledger.Network())
}

type batchPublished struct {
	Batch  uint64       `json:"batch"`
	Root   types.Hash32 `json:"root"`
	TxID   string       `json:"txid"`
	Height uint64       `json:"height"`
}

// Publish anchors the root of a building batch on L1 and marks it
// published. The recorded height is the tip at broadcast time.
func (a *Aggregator) Publish(ctx context.Context, id uint64) (*types.Batch, error) {
	h, err := batches.Get(a.db, id)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "batch %d", id)
	}
	if err != nil {
		return nil, err
	}
	if h.Status != types.BatchBuilding {
		return nil, errcode.New(errcode.CodeInvalidRequest, "batch %d is %s", id, h.Status)
	}
	tx, err := a.anchorTx(ctx, h.NewRoot)
	if err != nil {
		anchorFailures.Inc()
		return nil, fmt.Errorf("anchor batch %d: %w", id, err)
	}
	txid, err := a.client.SendRawTransaction(ctx, tx)
	if err != nil {
		anchorFailures.Inc()
		return nil, fmt.Errorf("broadcast anchor for batch %d: %w", id, err)
	}
	var height uint64
	if info, err := a.client.GetBlockchainInfo(ctx); err != nil {
		a.logger.Warn("chain tip unavailable after anchor broadcast", log.ZBatch(id), zap.Error(err))
	} else {
		height = info.Blocks
	}
	now := a.clock.Now()
	if err := a.db.WithTx(ctx, func(dtx *sql.Tx) error {
		if err := batches.SetPublished(dtx, id, txid, height, now); err != nil {
			return err
		}
		return auditlog.Append(dtx, auditlog.Entry{
			Event:     auditlog.BatchPublished,
			BatchID:   id,
			CreatedAt: now,
		}, batchPublished{Batch: id, Root: h.NewRoot, TxID: txid, Height: height})
	}); err != nil {
		return nil, err
	}
	batchesPublished.Inc()
	a.logger.Info("batch anchored",
		log.ZBatch(id),
		zap.String("txid", txid),
		zap.Uint64("height", height),
	)
	h.Status = types.BatchPublished
	h.AnchorTxID = txid
	h.AnchorHeight = height
	h.UpdatedAt = now
	return h.Batch, nil
}

// anchorTx spends the largest confirmed funding output into an OP_RETURN
// carrying the anchor payload and a change output back to the same address.
func (a *Aggregator) anchorTx(ctx context.Context, root types.Hash32) (*wire.MsgTx, error) {
	addr, err := a.FundingAddress()
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("funding script: %w", err)
	}
	utxo, err := a.selectFunding(ctx, addr.EncodeAddress())
	if err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(utxo.TxID)
	if err != nil {
		return nil, fmt.Errorf("funding output txid: %w", err)
	}
	data, err := txscript.NullDataScript(AnchorPayload(root))
	if err != nil {
		return nil, fmt.Errorf("anchor script: %w", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, utxo.Vout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, data))
	tx.AddTxOut(wire.NewTxOut(0, pkScript))

	fee := a.fee(ctx, tx)
	change := utxo.Value - fee
	if change < a.cfg.DustValue {
		return nil, fmt.Errorf("%w: output %s:%d holds %d sat, needs %d",
			errNoFunding, utxo.TxID, utxo.Vout, utxo.Value, a.cfg.DustValue+fee)
	}
	tx.TxOut[1].Value = change

	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, utxo.Value)
	sighash, err := txscript.CalcTaprootSignatureHash(
		txscript.NewTxSigHashes(tx, fetcher), txscript.SigHashDefault, tx, 0, fetcher)
	if err != nil {
		return nil, fmt.Errorf("anchor sighash: %w", err)
	}
	req := keys.SignRequest{Locator: a.key, KeyPath: true}
	copy(req.Digest[:], sighash)
	sig, err := a.signer.Sign(ctx, req)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig}
	if err := multisig.VerifyInput(tx, 0, fetcher); err != nil {
		return nil, err
	}
	return tx, nil
}

func (a *Aggregator) selectFunding(ctx context.Context, address string) (l1.Unspent, error) {
	unspent, err := a.client.ListUnspent(ctx, address)
	if err != nil {
		return l1.Unspent{}, fmt.Errorf("list funding outputs: %w", err)
	}
	var (
		best  l1.Unspent
		found bool
	)
	for _, u := range unspent {
		if u.Confirmations == 0 {
			continue
		}
		if !found || u.Value > best.Value {
			best, found = u, true
		}
	}
	if !found {
		return l1.Unspent{}, errNoFunding
	}
	return best, nil
}

// fee prices tx with a single key-path signature in its witness.
func (a *Aggregator) fee(ctx context.Context, tx *wire.MsgTx) int64 {
	rate, err := l1.FeeRate(ctx, a.client, a.cfg.FeeTarget, a.cfg.FallbackFeeRate)
	if err != nil {
		feeFallbacks.Inc()
		a.logger.Warn("fee estimation failed, using fallback rate",
			zap.Float64("rate", rate),
			zap.Error(err),
		)
	}
	sized := tx.Copy()
	sized.TxIn[0].Witness = wire.TxWitness{make([]byte, 64)}
	return l1.Fee(sized, rate)
}
