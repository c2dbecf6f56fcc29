package l1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/metrics"
)

// EsploraConfig addresses an Esplora compatible REST indexer.
type EsploraConfig struct {
	URL            string        `mapstructure:"url"`
	MaxRetries     int           `mapstructure:"max-retries"`
	RetryDelay     time.Duration `mapstructure:"retry-delay"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

// DefaultEsploraConfig has no URL; the fallback path is disabled until one
// is configured.
func DefaultEsploraConfig() EsploraConfig {
	return EsploraConfig{
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
	}
}

var errNotFound = errors.New("not found")

// EsploraClient implements Client over the Esplora REST API.
type EsploraClient struct {
	baseURL *url.URL
	client  *retryablehttp.Client
	logger  *zap.Logger
}

// EsploraOpt configures EsploraClient.
type EsploraOpt func(*EsploraClient)

// WithEsploraLogger sets the logger.
func WithEsploraLogger(logger *zap.Logger) EsploraOpt {
	return func(c *EsploraClient) {
		c.logger = logger
		c.client.Logger = log.NewRetryableHTTPLogger(logger)
	}
}

// NewEsploraClient returns a client for cfg.URL.
func NewEsploraClient(cfg EsploraConfig, opts ...EsploraOpt) (*EsploraClient, error) {
	baseURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing address: %w", err)
	}
	if baseURL.Scheme == "" {
		baseURL.Scheme = "https"
	}
	client := &retryablehttp.Client{
		HTTPClient:   &http.Client{Timeout: cfg.RequestTimeout},
		RetryMax:     cfg.MaxRetries,
		RetryWaitMin: cfg.RetryDelay,
		RetryWaitMax: 2 * cfg.RetryDelay,
		Backoff:      retryablehttp.LinearJitterBackoff,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
	}
	c := &EsploraClient{baseURL: baseURL, client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger.Info("created esplora client",
		zap.Stringer("url", baseURL),
		zap.Int("max retries", client.RetryMax),
		zap.Duration("min retry wait", client.RetryWaitMin),
	)
	return c, nil
}

func (c *EsploraClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	started := time.Now()
	data, err := c.roundTrip(ctx, method, path, body)
	metrics.ReportL1Call("esplora "+strings.SplitN(path, "/", 2)[0], started, err)
	return data, err
}

func (c *EsploraClient) roundTrip(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reqBody any
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %w", ErrUnavailable, err)
	}
	switch {
	case res.StatusCode == http.StatusOK:
		return data, nil
	case res.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", path, errNotFound)
	case res.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %s, body: %s", ErrUnavailable, res.Status, string(data))
	default:
		c.logger.Debug("esplora request failed", zap.String("status", res.Status), zap.String("body", string(data)))
		return nil, fmt.Errorf("esplora %s: status %s, body: %s", path, res.Status, string(data))
	}
}

func (c *EsploraClient) getJSON(ctx context.Context, path string, v any) error {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

type esploraStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

func (c *EsploraClient) tip(ctx context.Context) (uint64, error) {
	data, err := c.do(ctx, http.MethodGet, "blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tip height %q: %w", data, err)
	}
	return height, nil
}

func confirmations(status esploraStatus, tip uint64) uint32 {
	if !status.Confirmed || status.BlockHeight > tip {
		return 0
	}
	return uint32(tip - status.BlockHeight + 1)
}

func (c *EsploraClient) ListUnspent(ctx context.Context, address string) ([]Unspent, error) {
	var utxos []struct {
		TxID   string        `json:"txid"`
		Vout   uint32        `json:"vout"`
		Value  int64         `json:"value"`
		Status esploraStatus `json:"status"`
	}
	if err := c.getJSON(ctx, "address/"+address+"/utxo", &utxos); err != nil {
		return nil, err
	}
	tip, err := c.tip(ctx)
	if err != nil {
		return nil, err
	}
	unspent := make([]Unspent, 0, len(utxos))
	for _, u := range utxos {
		unspent = append(unspent, Unspent{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Value:         u.Value,
			Confirmations: confirmations(u.Status, tip),
		})
	}
	return unspent, nil
}

func (c *EsploraClient) GetRawTransaction(ctx context.Context, txid string) (*RawTx, error) {
	data, err := c.do(ctx, http.MethodGet, "tx/"+txid+"/hex", nil)
	if err != nil {
		return nil, err
	}
	tx, err := decodeTx(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, err
	}
	var status esploraStatus
	if err := c.getJSON(ctx, "tx/"+txid+"/status", &status); err != nil {
		return nil, err
	}
	raw := &RawTx{Tx: tx}
	if status.Confirmed {
		tip, err := c.tip(ctx)
		if err != nil {
			return nil, err
		}
		raw.Confirmations = confirmations(status, tip)
		raw.BlockHeight = status.BlockHeight
	}
	return raw, nil
}

func (c *EsploraClient) SendRawTransaction(ctx context.Context, tx *wire.MsgTx) (string, error) {
	raw, err := EncodeTx(tx)
	if err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodPost, "tx", []byte(raw))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *EsploraClient) GetBlockchainInfo(ctx context.Context) (*ChainInfo, error) {
	tip, err := c.tip(ctx)
	if err != nil {
		return nil, err
	}
	hash, err := c.do(ctx, http.MethodGet, "blocks/tip/hash", nil)
	if err != nil {
		return nil, err
	}
	return &ChainInfo{Chain: "esplora", Blocks: tip, BestBlockHash: strings.TrimSpace(string(hash))}, nil
}

func (c *EsploraClient) GetTxOut(ctx context.Context, txid string, vout uint32) (*TxOut, error) {
	var spend struct {
		Spent bool `json:"spent"`
	}
	err := c.getJSON(ctx, fmt.Sprintf("tx/%s/outspend/%d", txid, vout), &spend)
	switch {
	case errors.Is(err, errNotFound):
		return nil, fmt.Errorf("%s:%d: %w", txid, vout, ErrSpent)
	case err != nil:
		return nil, err
	case spend.Spent:
		return nil, fmt.Errorf("%s:%d: %w", txid, vout, ErrSpent)
	}
	raw, err := c.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, err
	}
	if int(vout) >= len(raw.Tx.TxOut) {
		return nil, fmt.Errorf("%s:%d: %w", txid, vout, ErrSpent)
	}
	out := raw.Tx.TxOut[vout]
	return &TxOut{Value: out.Value, PkScript: out.PkScript, Confirmations: raw.Confirmations}, nil
}

func (c *EsploraClient) EstimateSmartFee(ctx context.Context, targetBlocks int64) (float64, error) {
	var estimates map[string]float64
	if err := c.getJSON(ctx, "fee-estimates", &estimates); err != nil {
		return 0, err
	}
	// Use the closest target that is not slower than requested.
	best, rate := int64(-1), 0.0
	for k, v := range estimates {
		target, err := strconv.ParseInt(k, 10, 64)
		if err != nil || target > targetBlocks {
			continue
		}
		if target > best {
			best, rate = target, v
		}
	}
	if best < 0 || rate <= 0 {
		return 0, fmt.Errorf("%w: no estimate for %d blocks", ErrNoEstimate, targetBlocks)
	}
	return rate, nil
}
