package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/validators"
)

type registerRequest struct {
	ID            string `json:"id"`
	PublicKey     string `json:"public_key"`
	PayoutAddress string `json:"payout_address"`
	Stake         string `json:"stake"`
}

func (s *Server) registerValidator(r *http.Request) (any, error) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	pub, err := parseHex("public_key", req.PublicKey)
	if err != nil {
		return nil, err
	}
	stake, err := parseAmount("stake", req.Stake)
	if err != nil {
		return nil, err
	}
	v, err := s.svc.Validators.Register(r.Context(), validators.Registration{
		ID:            req.ID,
		PublicKey:     pub,
		PayoutAddress: req.PayoutAddress,
		Stake:         stake,
	})
	if err != nil {
		return nil, err
	}
	return created{newValidatorView(v)}, nil
}

func (s *Server) listValidators(r *http.Request) (any, error) {
	list, err := s.svc.Validators.List(r.Context())
	if err != nil {
		return nil, err
	}
	rst := make([]validatorView, 0, len(list))
	for _, v := range list {
		rst = append(rst, newValidatorView(v))
	}
	return rst, nil
}

func (s *Server) getValidator(r *http.Request) (any, error) {
	v, err := s.svc.Validators.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return newValidatorView(v), nil
}

type claimView struct {
	Claimed   string        `json:"claimed"`
	Validator validatorView `json:"validator"`
}

func (s *Server) claimRewards(r *http.Request) (any, error) {
	id := mux.Vars(r)["id"]
	claimed, err := s.svc.Validators.ClaimRewards(r.Context(), id)
	if err != nil {
		return nil, err
	}
	v, err := s.svc.Validators.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return claimView{Claimed: amount(claimed), Validator: newValidatorView(v)}, nil
}

type slashRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) slashValidator(r *http.Request) (any, error) {
	var req slashRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if req.Reason == "" {
		return nil, errcode.New(errcode.CodeInvalidRequest, "reason is required")
	}
	v, err := s.svc.Validators.Slash(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		return nil, err
	}
	return newValidatorView(v), nil
}

func (s *Server) deactivateValidator(r *http.Request) (any, error) {
	v, err := s.svc.Validators.Deactivate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	return newValidatorView(v), nil
}
