package l1

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/metrics"
)

// RPCConfig addresses a bitcoind JSON-RPC endpoint.
type RPCConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	TLS      bool   `mapstructure:"tls"`
}

// RPCClient implements Client over bitcoind JSON-RPC in HTTP POST mode.
type RPCClient struct {
	rpc    *rpcclient.Client
	net    *chaincfg.Params
	logger *zap.Logger
}

// RPCOpt configures RPCClient.
type RPCOpt func(*RPCClient)

// WithRPCLogger sets the logger.
func WithRPCLogger(logger *zap.Logger) RPCOpt {
	return func(c *RPCClient) {
		c.logger = logger
	}
}

// NewRPCClient connects lazily; no request is made until the first call.
func NewRPCClient(cfg RPCConfig, net *chaincfg.Params, opts ...RPCOpt) (*RPCClient, error) {
	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   !cfg.TLS,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create rpc client for %s: %w", cfg.Host, err)
	}
	c := &RPCClient{rpc: rpc, net: net, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("created l1 rpc client", zap.String("host", cfg.Host), zap.String("network", net.Name))
	return c, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.rpc.Shutdown()
}

// await blocks on an rpcclient future until it resolves or ctx is done.
// The request itself cannot be cancelled once sent.
func await[T any](ctx context.Context, method string, receive func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	started := time.Now()
	ch := make(chan result, 1)
	go func() {
		v, err := receive()
		ch <- result{value: v, err: err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		metrics.ReportL1Call(method, started, ctx.Err())
		return zero, ctx.Err()
	case r := <-ch:
		metrics.ReportL1Call(method, started, r.err)
		if r.err != nil {
			return r.value, wrapRPCError(method, r.err)
		}
		return r.value, nil
	}
}

// wrapRPCError keeps node-side rejections (RPCError) distinct from
// transport failures, which are marked ErrUnavailable.
func wrapRPCError(method string, err error) error {
	var rpcErr *btcjson.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Errorf("%s: %w: %w", method, ErrUnavailable, err)
}

func (c *RPCClient) ListUnspent(ctx context.Context, address string) ([]Unspent, error) {
	addr, err := btcutil.DecodeAddress(address, c.net)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", address, err)
	}
	future := c.rpc.ListUnspentMinMaxAddressesAsync(0, 9999999, []btcutil.Address{addr})
	res, err := await(ctx, "listunspent", future.Receive)
	if err != nil {
		return nil, err
	}
	unspent := make([]Unspent, 0, len(res))
	for _, u := range res {
		amount, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("listunspent amount %v: %w", u.Amount, err)
		}
		unspent = append(unspent, Unspent{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Value:         int64(amount),
			Confirmations: uint32(u.Confirmations),
		})
	}
	return unspent, nil
}

func (c *RPCClient) GetRawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("parse txid %s: %w", txid, err)
	}
	future := c.rpc.GetRawTransactionVerboseAsync(hash)
	res, err := await(ctx, "getrawtransaction", future.Receive)
	if err != nil {
		return nil, err
	}
	tx, err := decodeTx(res.Hex)
	if err != nil {
		return nil, err
	}
	raw := &RawTx{Tx: tx, Confirmations: uint32(res.Confirmations)}
	if res.Confirmations > 0 {
		info, err := c.GetBlockchainInfo(ctx)
		if err != nil {
			return nil, err
		}
		raw.BlockHeight = info.Blocks + 1 - res.Confirmations
	}
	return raw, nil
}

func (c *RPCClient) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (string, error) {
	future := c.rpc.SendRawTransactionAsync(tx, false)
	hash, err := await(ctx, "sendrawtransaction", future.Receive)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

func (c *RPCClient) GetBlockchainInfo(ctx context.Context) (*ChainInfo, error) {
	future := c.rpc.GetBlockChainInfoAsync()
	res, err := await(ctx, "getblockchaininfo", future.Receive)
	if err != nil {
		return nil, err
	}
	return &ChainInfo{
		Chain:         res.Chain,
		Blocks:        uint64(res.Blocks),
		BestBlockHash: res.BestBlockHash,
	}, nil
}

func (c *RPCClient) GetTxOut(ctx context.Context, txid string, vout uint32) (*TxOut, error) {
	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, fmt.Errorf("parse txid %s: %w", txid, err)
	}
	future := c.rpc.GetTxOutAsync(hash, vout, true)
	res, err := await(ctx, "gettxout", future.Receive)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%s:%d: %w", txid, vout, ErrSpent)
	}
	amount, err := btcutil.NewAmount(res.Value)
	if err != nil {
		return nil, fmt.Errorf("gettxout amount %v: %w", res.Value, err)
	}
	script, err := hex.DecodeString(res.ScriptPubKey.Hex)
	if err != nil {
		return nil, fmt.Errorf("gettxout script: %w", err)
	}
	return &TxOut{Value: int64(amount), PkScript: script, Confirmations: uint32(res.Confirmations)}, nil
}

func (c *RPCClient) EstimateSmartFee(ctx context.Context, targetBlocks int64) (float64, error) {
	mode := btcjson.EstimateModeConservative
	future := c.rpc.EstimateSmartFeeAsync(targetBlocks, &mode)
	res, err := await(ctx, "estimatesmartfee", future.Receive)
	if err != nil {
		return 0, err
	}
	if res.FeeRate == nil || *res.FeeRate <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrNoEstimate, res.Errors)
	}
	// BTC/kvB to sat/vB.
	return *res.FeeRate * btcutil.SatoshiPerBitcoin / 1000, nil
}
