// Package l1 talks to the Bitcoin base chain: a bitcoind JSON-RPC client, an
// Esplora REST client and wrappers that fail over and rate limit calls.
package l1

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
)

//go:generate mockgen -typed -package=mocks -destination=./mocks/mocks.go -source=./client.go

var (
	// ErrSpent is returned by GetTxOut for outputs no longer in the UTXO set.
	ErrSpent = errors.New("l1: output spent or unknown")
	// ErrUnavailable marks transport level failures. Fallback only retries
	// the secondary client on errors wrapping it.
	ErrUnavailable = errors.New("l1: unavailable")
	// ErrNoEstimate is returned when the node cannot estimate a fee.
	ErrNoEstimate = errors.New("l1: fee estimate unavailable")
)

// Unspent is an output paid to a watched address.
type Unspent struct {
	TxID          string
	Vout          uint32
	Value         int64
	Confirmations uint32
}

// RawTx is a transaction with its chain position. BlockHeight is zero and
// Confirmations is zero while it sits in the mempool.
type RawTx struct {
	Tx            *wire.MsgTx
	Confirmations uint32
	BlockHeight   uint64
}

// TxOut is an unspent output as reported by the UTXO set.
type TxOut struct {
	Value         int64
	PkScript      []byte
	Confirmations uint32
}

// ChainInfo is the tip of the chain the client follows.
type ChainInfo struct {
	Chain         string
	Blocks        uint64
	BestBlockHash string
}

// Client is the set of L1 calls the bridge and rollup make.
type Client interface {
	ListUnspent(ctx context.Context, address string) ([]Unspent, error)
	GetRawTransaction(ctx context.Context, txid string) (*RawTx, error)
	SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (string, error)
	GetBlockchainInfo(ctx context.Context) (*ChainInfo, error)
	GetTxOut(ctx context.Context, txid string, vout uint32) (*TxOut, error)
	// EstimateSmartFee returns a fee rate in sat/vB for confirmation within
	// targetBlocks.
	EstimateSmartFee(ctx context.Context, targetBlocks int64) (float64, error)
}
