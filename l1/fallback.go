package l1

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
)

// Fallback sends every call to primary and repeats it on secondary when the
// primary is unreachable. Node-side rejections are returned as is.
type Fallback struct {
	primary   Client
	secondary Client
	logger    *zap.Logger
}

// NewFallback wraps two clients.
func NewFallback(primary, secondary Client, logger *zap.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func fallback[T any](f *Fallback, method string, call func(Client) (T, error)) (T, error) {
	v, err := call(f.primary)
	if err == nil || !errors.Is(err, ErrUnavailable) {
		return v, err
	}
	fallbacks.WithLabelValues(method).Inc()
	f.logger.Warn("l1 primary unavailable, using fallback", zap.String("method", method), zap.Error(err))
	return call(f.secondary)
}

func (f *Fallback) ListUnspent(ctx context.Context, address string) ([]Unspent, error) {
	return fallback(f, "listunspent", func(c Client) ([]Unspent, error) {
		return c.ListUnspent(ctx, address)
	})
}

func (f *Fallback) GetRawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	return fallback(f, "getrawtransaction", func(c Client) (*RawTx, error) {
		return c.GetRawTransaction(ctx, txid)
	})
}

func (f *Fallback) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (string, error) {
	return fallback(f, "sendrawtransaction", func(c Client) (string, error) {
		return c.SendRawTransaction(ctx, tx)
	})
}

func (f *Fallback) GetBlockchainInfo(ctx context.Context) (*ChainInfo, error) {
	return fallback(f, "getblockchaininfo", func(c Client) (*ChainInfo, error) {
		return c.GetBlockchainInfo(ctx)
	})
}

func (f *Fallback) GetTxOut(ctx context.Context, txid string, vout uint32) (*TxOut, error) {
	return fallback(f, "gettxout", func(c Client) (*TxOut, error) {
		return c.GetTxOut(ctx, txid, vout)
	})
}

func (f *Fallback) EstimateSmartFee(ctx context.Context, targetBlocks int64) (float64, error) {
	return fallback(f, "estimatesmartfee", func(c Client) (float64, error) {
		return c.EstimateSmartFee(ctx, targetBlocks)
	})
}
