package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/transactions"
)

type submitRequest struct {
	Sender    types.AccountID `json:"sender"`
	Recipient types.AccountID `json:"recipient,omitempty"`
	Type      types.TxType    `json:"type"`
	Amount    string          `json:"amount"`
	Nonce     uint64          `json:"nonce"`
	Signature string          `json:"signature"`
	Payload   string          `json:"payload,omitempty"`
}

func (s *Server) submitTransaction(r *http.Request) (any, error) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	sig, err := parseHex("signature", req.Signature)
	if err != nil {
		return nil, err
	}
	payload, err := parseHex("payload", req.Payload)
	if err != nil {
		return nil, err
	}
	receipt, err := s.svc.Executor.ExecuteTransaction(r.Context(), &executor.Request{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Type:      req.Type,
		Amount:    amount,
		Nonce:     req.Nonce,
		Signature: sig,
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	return created{newReceiptView(receipt)}, nil
}

func (s *Server) getTransaction(r *http.Request) (any, error) {
	raw := mux.Vars(r)["hash"]
	hash, err := types.HexToHash32(raw)
	if err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid transaction hash %q", raw)
	}
	tx, err := transactions.Get(s.svc.DB, hash)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "transaction %s", hash.ShortString())
	}
	if err != nil {
		return nil, err
	}
	return newTransactionView(tx), nil
}

type gasView struct {
	Type   types.TxType `json:"type"`
	GasFee string       `json:"gas_fee"`
}

func (s *Server) estimateGas(r *http.Request) (any, error) {
	typ := types.TxType(mux.Vars(r)["type"])
	fee, err := s.svc.Executor.EstimateGas(typ)
	if err != nil {
		return nil, err
	}
	return gasView{Type: typ, GasFee: amount(fee)}, nil
}
