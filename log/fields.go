package log

import (
	"math/big"

	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/types"
)

// ZAmount renders an arbitrary precision amount as a decimal string.
func ZAmount(name string, v *big.Int) zap.Field {
	return zap.String(name, types.AmountString(v))
}

// ZAccount is the field for an L2 account id.
func ZAccount(id types.AccountID) zap.Field {
	return zap.String("account", string(id))
}

// ZOutpoint is the field for an L1 output reference.
func ZOutpoint(txid string, vout uint32) zap.Field {
	return zap.String("outpoint", types.DepositID(txid, vout))
}

// ZHash is the field for a 32 byte hash.
func ZHash(name string, h types.Hash32) zap.Field {
	return zap.String(name, h.ShortString())
}

// ZBatch is the field for a batch id.
func ZBatch(id uint64) zap.Field {
	return zap.Uint64("batch", id)
}
