package l1

import (
	"context"
	"math"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// FeeRate asks c for a sat/vB estimate for target blocks. When the estimate
// is unavailable it returns fallback together with the reason.
func FeeRate(ctx context.Context, c Client, target int64, fallback float64) (float64, error) {
	rate, err := c.EstimateSmartFee(ctx, target)
	if err != nil {
		return fallback, err
	}
	if rate <= 0 {
		return fallback, ErrNoEstimate
	}
	return rate, nil
}

// VSize returns the virtual size of tx in vbytes, witness included.
func VSize(tx *wire.MsgTx) int64 {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	return (weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor
}

// Fee prices tx at rate sat/vB, rounding up.
func Fee(tx *wire.MsgTx, rate float64) int64 {
	return int64(math.Ceil(rate * float64(VSize(tx))))
}
