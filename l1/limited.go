package l1

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped client with a token bucket.
type Limited struct {
	client  Client
	limiter *rate.Limiter
}

// NewLimited allows perSecond calls with bursts of up to burst.
func NewLimited(client Client, perSecond float64, burst int) *Limited {
	return &Limited{client: client, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("l1 rate limit: %w", err)
	}
	return nil
}

func (l *Limited) ListUnspent(ctx context.Context, address string) ([]Unspent, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.client.ListUnspent(ctx, address)
}

func (l *Limited) GetRawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.client.GetRawTransaction(ctx, txid)
}

func (l *Limited) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (string, error) {
	if err := l.wait(ctx); err != nil {
		return "", err
	}
	return l.client.SendRawTransaction(ctx, tx)
}

func (l *Limited) GetBlockchainInfo(ctx context.Context) (*ChainInfo, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.client.GetBlockchainInfo(ctx)
}

func (l *Limited) GetTxOut(ctx context.Context, txid string, vout uint32) (*TxOut, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.client.GetTxOut(ctx, txid, vout)
}

func (l *Limited) EstimateSmartFee(ctx context.Context, targetBlocks int64) (float64, error) {
	if err := l.wait(ctx); err != nil {
		return 0, err
	}
	return l.client.EstimateSmartFee(ctx, targetBlocks)
}
