package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/consensus"
	"github.com/btcl2/l2node/fraudproof"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/transactions"
)

const defaultBatchPage = 20

func (s *Server) listBatches(r *http.Request) (any, error) {
	limit, err := s.limit(r, defaultBatchPage)
	if err != nil {
		return nil, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return nil, err
	}
	headers, err := s.svc.Aggregator.Batches(r.Context(), limit, offset)
	if err != nil {
		return nil, err
	}
	return newBatchHeaderViews(headers), nil
}

func (s *Server) getBatch(r *http.Request) (any, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid batch id %q", mux.Vars(r)["id"])
	}
	b, err := s.svc.Aggregator.GetBatch(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return newBatchView(b, len(b.TxHashes)), nil
}

type fraudCheckRequest struct {
	TxHash  types.Hash32           `json:"tx_hash"`
	Pre     []fraudproof.StateJSON `json:"pre_state"`
	Claimed []fraudproof.StateJSON `json:"claimed_post_state"`
}

type fraudCheckView struct {
	Valid bool `json:"valid"`
}

// fraudError carries the proof to the error response.
type fraudError struct {
	err   error
	proof *fraudproof.Proof
}

func (e *fraudError) Error() string { return e.err.Error() }

func (e *fraudError) Unwrap() error { return e.err }

func states(field string, in []fraudproof.StateJSON) ([]types.AccountState, error) {
	rst := make([]types.AccountState, 0, len(in))
	for i, s := range in {
		state, ok := s.State()
		if !ok {
			return nil, errcode.New(errcode.CodeInvalidAmount, "%s[%d] has an invalid amount", field, i)
		}
		rst = append(rst, state)
	}
	return rst, nil
}

// checkFraud replays a stored transaction over the submitted pre-state and
// compares the result with the claimed post-state.
func (s *Server) checkFraud(r *http.Request) (any, error) {
	var req fraudCheckRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	pre, err := states("pre_state", req.Pre)
	if err != nil {
		return nil, err
	}
	claimed, err := states("claimed_post_state", req.Claimed)
	if err != nil {
		return nil, err
	}
	tx, err := transactions.Get(s.svc.DB, req.TxHash)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "transaction %s", hex.EncodeToString(req.TxHash[:]))
	}
	if err != nil {
		return nil, err
	}
	proof, err := s.svc.Fraud.Check(r.Context(), pre, tx, claimed)
	if proof != nil {
		return nil, &fraudError{err: err, proof: proof}
	}
	if err != nil {
		return nil, err
	}
	return fraudCheckView{Valid: true}, nil
}

func (s *Server) consensusStatus(*http.Request) (any, error) {
	return s.svc.Consensus.Status(), nil
}

func (s *Server) vote(r *http.Request) (any, error) {
	var req consensus.VoteRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.svc.Consensus.HandleVote(r.Context(), req)
}

func (s *Server) heartbeat(r *http.Request) (any, error) {
	var req consensus.HeartbeatRequest
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return s.svc.Consensus.HandleHeartbeat(r.Context(), req)
}
