package rollup

import (
	"context"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/merkle"
)

// StateTree builds the state tree over states, which must be ordered by id.
func StateTree(states []types.AccountState) *merkle.Tree {
	leaves := make([]types.Hash32, 0, len(states))
	for _, s := range states {
		leaves = append(leaves, s.Leaf())
	}
	return merkle.New(leaves)
}

// StateRoot is StateTree(states).Root().
func StateRoot(states []types.AccountState) types.Hash32 {
	return StateTree(states).Root()
}

// StateProof proves the current state of one account against the current
// state root.
type StateProof struct {
	Account types.AccountState
	Leaf    types.Hash32
	Root    types.Hash32
	Proof   merkle.Proof
}

// Verify checks the proof is internally consistent.
func (p *StateProof) Verify() bool {
	return p.Account.Leaf() == p.Leaf && merkle.Verify(p.Leaf, p.Proof, p.Root)
}

// StateProof proves the current state of id.
func (a *Aggregator) StateProof(ctx context.Context, id types.AccountID) (*StateProof, error) {
	states, err := a.ledger.States(ctx)
	if err != nil {
		return nil, err
	}
	for i, s := range states {
		if s.ID != id {
			continue
		}
		tree := StateTree(states)
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		return &StateProof{Account: s, Leaf: s.Leaf(), Root: tree.Root(), Proof: proof}, nil
	}
	return nil, errcode.New(errcode.CodeNotFound, "account %s", id)
}
