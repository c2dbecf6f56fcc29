package executor

import (
	"fmt"
	"math/big"

	"github.com/btcl2/l2node/common/types"
)

// GasSchedule is the fixed per-type fee, in credits.
type GasSchedule struct {
	Transfer uint64 `mapstructure:"transfer"`
	Burn     uint64 `mapstructure:"burn"`
	Stake    uint64 `mapstructure:"stake"`
	Unstake  uint64 `mapstructure:"unstake"`
}

// DefaultGasSchedule returns the fee table used on every network.
func DefaultGasSchedule() GasSchedule {
	return GasSchedule{
		Transfer: 100,
		Burn:     50,
		Stake:    150,
		Unstake:  150,
	}
}

// Fee returns the gas fee of typ.
func (g GasSchedule) Fee(typ types.TxType) (*big.Int, error) {
	var fee uint64
	switch typ {
	case types.TxTransfer:
		fee = g.Transfer
	case types.TxBurn:
		fee = g.Burn
	case types.TxStake:
		fee = g.Stake
	case types.TxUnstake:
		fee = g.Unstake
	default:
		return nil, fmt.Errorf("unknown transaction type %q", typ)
	}
	return new(big.Int).SetUint64(fee), nil
}

// SplitGas divides total gas into the burned share and the validator share.
// The validator share gets the rounding remainder.
func SplitGas(total *big.Int, burnPercent uint64) (burned, validators *big.Int) {
	return types.SplitPercent(types.CopyAmount(total), burnPercent)
}
