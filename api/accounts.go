package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/sql/transactions"
)

const defaultHistory = 50

type createAccountRequest struct {
	L1Address string `json:"l1_address"`
	// PublicKey is the hex x-only key. Optional for P2TR owners.
	PublicKey string `json:"public_key,omitempty"`
}

func (s *Server) createAccount(r *http.Request) (any, error) {
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	pub, err := parseHex("public_key", req.PublicKey)
	if err != nil {
		return nil, err
	}
	account, isNew, err := s.svc.Ledger.CreateAccount(r.Context(), req.L1Address, pub)
	if err != nil {
		return nil, err
	}
	if isNew {
		return created{newAccountView(account)}, nil
	}
	return newAccountView(account), nil
}

// lookup reads the tagged account reference from the path.
func lookup(r *http.Request) ledger.Lookup {
	vars := mux.Vars(r)
	if vars["kind"] == "address" {
		return ledger.Address(vars["key"])
	}
	return ledger.ID(types.AccountID(vars["key"]))
}

func (s *Server) account(r *http.Request) (*types.Account, error) {
	return s.svc.Ledger.GetAccount(r.Context(), lookup(r))
}

func (s *Server) getAccount(r *http.Request) (any, error) {
	account, err := s.account(r)
	if err != nil {
		return nil, err
	}
	return newAccountView(account), nil
}

func (s *Server) getBalance(r *http.Request) (any, error) {
	balance, err := s.svc.Ledger.GetBalance(r.Context(), lookup(r))
	if err != nil {
		return nil, err
	}
	return newBalanceView(balance), nil
}

func (s *Server) accountTransactions(r *http.Request) (any, error) {
	limit, err := s.limit(r, defaultHistory)
	if err != nil {
		return nil, err
	}
	account, err := s.account(r)
	if err != nil {
		return nil, err
	}
	txs, err := transactions.BySender(s.svc.DB, account.ID, limit)
	if err != nil {
		return nil, err
	}
	return newTransactionViews(txs), nil
}

func (s *Server) accountDeposits(r *http.Request) (any, error) {
	limit, err := s.limit(r, defaultHistory)
	if err != nil {
		return nil, err
	}
	account, err := s.account(r)
	if err != nil {
		return nil, err
	}
	deposits, err := s.svc.Bridge.DepositsOf(r.Context(), account.ID, limit)
	if err != nil {
		return nil, err
	}
	rst := make([]depositView, 0, len(deposits))
	for _, d := range deposits {
		rst = append(rst, newDepositView(d))
	}
	return rst, nil
}

func (s *Server) accountWithdrawals(r *http.Request) (any, error) {
	limit, err := s.limit(r, defaultHistory)
	if err != nil {
		return nil, err
	}
	account, err := s.account(r)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.svc.Bridge.WithdrawalsOf(r.Context(), account.ID, limit)
	if err != nil {
		return nil, err
	}
	rst := make([]withdrawalView, 0, len(withdrawals))
	for _, w := range withdrawals {
		rst = append(rst, newWithdrawalView(w))
	}
	return rst, nil
}

func (s *Server) stateProof(r *http.Request) (any, error) {
	account, err := s.account(r)
	if err != nil {
		return nil, err
	}
	proof, err := s.svc.Aggregator.StateProof(r.Context(), account.ID)
	if err != nil {
		return nil, err
	}
	return newStateProofView(proof), nil
}
