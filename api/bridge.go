package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/btcl2/l2node/common/types"
)

type bridgeView struct {
	CustodyAddress  string `json:"custody_address"`
	Token           string `json:"token"`
	Rate            uint64 `json:"rate"`
	MinWithdrawal   uint64 `json:"min_withdrawal"`
	Confirmations   uint32 `json:"confirmations"`
	ChallengePeriod string `json:"challenge_period"`
}

func (s *Server) bridgeInfo(*http.Request) (any, error) {
	cfg := s.svc.Bridge.Config()
	return bridgeView{
		CustodyAddress:  s.svc.Bridge.Custody().Address.EncodeAddress(),
		Token:           cfg.Token,
		Rate:            cfg.Rate,
		MinWithdrawal:   cfg.MinWithdrawal,
		Confirmations:   cfg.Confirmations,
		ChallengePeriod: cfg.ChallengePeriod.String(),
	}, nil
}

func (s *Server) getDeposit(r *http.Request) (any, error) {
	d, err := s.svc.Bridge.GetDeposit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return newDepositView(d), nil
}

func (s *Server) claimDeposit(r *http.Request) (any, error) {
	d, err := s.svc.Bridge.ClaimDeposit(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return newDepositView(d), nil
}

type withdrawalRequest struct {
	AccountID types.AccountID `json:"account_id"`
	Credits   string          `json:"credits"`
	L1Address string          `json:"l1_address"`
}

func (s *Server) requestWithdrawal(r *http.Request) (any, error) {
	var req withdrawalRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	credits, err := parseAmount("credits", req.Credits)
	if err != nil {
		return nil, err
	}
	w, err := s.svc.Bridge.RequestWithdrawal(r.Context(), req.AccountID, credits, req.L1Address)
	if err != nil {
		return nil, err
	}
	return created{newWithdrawalView(w)}, nil
}

func (s *Server) getWithdrawal(r *http.Request) (any, error) {
	w, err := s.svc.Bridge.GetWithdrawal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return newWithdrawalView(w), nil
}

type challengeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) challengeWithdrawal(r *http.Request) (any, error) {
	var req challengeRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	w, err := s.svc.Bridge.ChallengeWithdrawal(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		return nil, err
	}
	return newWithdrawalView(w), nil
}
