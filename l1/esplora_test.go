package l1

import (
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/btcl2/l2node/log/logtest"
)

func testTx(t *testing.T) (*wire.MsgTx, string) {
	t.Helper()
	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{1}, 0), nil, nil))
	tx.AddTxOut(wire.NewTxOut(5_000, []byte{0x51, 0x20}))
	raw, err := EncodeTx(tx)
	require.NoError(t, err)
	return tx, raw
}

func newEsplora(t *testing.T, mux *http.ServeMux) *EsploraClient {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := DefaultEsploraConfig()
	cfg.URL = srv.URL
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond
	client, err := NewEsploraClient(cfg, WithEsploraLogger(logtest.New(t)))
	require.NoError(t, err)
	return client
}

func TestEsploraListUnspent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/address/bcrt1ptest/utxo", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[
			{"txid":"aa","vout":1,"value":1000,"status":{"confirmed":true,"block_height":95}},
			{"txid":"bb","vout":0,"value":2000,"status":{"confirmed":false}}
		]`)
	})
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "100")
	})
	client := newEsplora(t, mux)

	unspent, err := client.ListUnspent(context.Background(), "bcrt1ptest")
	require.NoError(t, err)
	require.Equal(t, []Unspent{
		{TxID: "aa", Vout: 1, Value: 1000, Confirmations: 6},
		{TxID: "bb", Vout: 0, Value: 2000, Confirmations: 0},
	}, unspent)
}

func TestEsploraGetTxOut(t *testing.T) {
	tx, raw := testTx(t)
	txid := tx.TxHash().String()
	mux := http.NewServeMux()
	mux.HandleFunc("/tx/"+txid+"/outspend/0", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"spent":false}`)
	})
	mux.HandleFunc("/tx/"+txid+"/outspend/1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"spent":true}`)
	})
	mux.HandleFunc("/tx/"+txid+"/hex", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, raw)
	})
	mux.HandleFunc("/tx/"+txid+"/status", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"confirmed":true,"block_height":10}`)
	})
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "12")
	})
	client := newEsplora(t, mux)

	out, err := client.GetTxOut(context.Background(), txid, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5_000), out.Value)
	require.Equal(t, uint32(3), out.Confirmations)

	_, err = client.GetTxOut(context.Background(), txid, 1)
	require.ErrorIs(t, err, ErrSpent)
}

func TestEsploraSend(t *testing.T) {
	tx, raw := testTx(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/tx", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Equal(t, raw, string(body))
		io.WriteString(w, tx.TxHash().String())
	})
	client := newEsplora(t, mux)

	txid, err := client.SendRawTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash().String(), txid)
}

func TestEsploraFeeEstimate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fee-estimates", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"1":30.5,"3":20.1,"6":12.0,"144":1.0}`)
	})
	client := newEsplora(t, mux)

	rate, err := client.EstimateSmartFee(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, 12.0, rate)
	rate, err = client.EstimateSmartFee(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 20.1, rate)
	_, err = client.EstimateSmartFee(context.Background(), 0)
	require.ErrorIs(t, err, ErrNoEstimate)
}

func TestEsploraUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/tx/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "bad tx")
	})
	client := newEsplora(t, mux)

	_, err := client.GetBlockchainInfo(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = client.GetRawTransaction(context.Background(), hex.EncodeToString(make([]byte, 32)))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnavailable)
}
