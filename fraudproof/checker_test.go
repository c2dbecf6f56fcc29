package fraudproof

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/btcl2/l2node/codec"
	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/log/logtest"
	"github.com/btcl2/l2node/rollup"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/statesql"
)

const (
	alice = types.AccountID("l2aa")
	bob   = types.AccountID("l2bb")
	carol = types.AccountID("l2cc")
)

func state(id types.AccountID, balance, staked int64, nonce uint64) types.AccountState {
	return types.AccountState{ID: id, Balance: big.NewInt(balance), Staked: big.NewInt(staked), Nonce: nonce}
}

func preState() []types.AccountState {
	return []types.AccountState{
		state(alice, 10_000, 0, 3),
		state(bob, 500, 0, 0),
		state(carol, 7, 100, 1),
	}
}

func transfer(amount int64, nonce uint64) *types.Transaction {
	return &types.Transaction{
		Hash:      types.CalcHash32([]byte("tx")),
		Sender:    alice,
		Recipient: bob,
		Type:      types.TxTransfer,
		Amount:    big.NewInt(amount),
		GasFee:    big.NewInt(100),
		Nonce:     nonce,
	}
}

func newChecker(t *testing.T) (*Checker, *sql.Database) {
	db := statesql.InMemory()
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	return New(db, WithLogger(logtest.New(t)), WithClock(clock)), db
}

func TestHonestTransition(t *testing.T) {
	c, db := newChecker(t)
	claimed := []types.AccountState{
		state(alice, 9_500, 0, 4),
		state(bob, 900, 0, 0),
		state(carol, 7, 100, 1),
	}
	proof, err := c.Check(context.Background(), preState(), transfer(400, 3), claimed)
	require.NoError(t, err)
	require.Nil(t, proof)

	entries, err := auditlog.List(db, auditlog.Filter{Event: auditlog.FraudDetected})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestInflatedRecipient(t *testing.T) {
	c, db := newChecker(t)
	claimed := []types.AccountState{
		state(alice, 9_500, 0, 4),
		state(bob, 1_900, 0, 0),
		state(carol, 7, 100, 1),
	}
	proof, err := c.Check(context.Background(), preState(), transfer(400, 3), claimed)
	require.ErrorIs(t, err, errcode.ErrFraudDetected)
	require.NotNil(t, proof)
	require.Equal(t, []types.AccountID{bob}, proof.Mismatched())
	require.Empty(t, proof.Rejection)

	// only the touched accounts are carried
	require.Len(t, proof.Pre, 2)
	require.Len(t, proof.Expected, 2)
	require.Equal(t, "900", proof.Expected[1].Balance.String())
	require.Equal(t, "1900", proof.Claimed[1].Balance.String())

	require.Equal(t, rollup.StateRoot(claimed), proof.ClaimedRoot)
	require.Equal(t, rollup.StateRoot([]types.AccountState{
		state(alice, 9_500, 0, 4),
		state(bob, 900, 0, 0),
		state(carol, 7, 100, 1),
	}), proof.ExpectedRoot)
	require.NotEqual(t, proof.ExpectedRoot, proof.ClaimedRoot)

	entries, err := auditlog.List(db, auditlog.Filter{Event: auditlog.FraudDetected})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, alice, entries[0].AccountID)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Payload, &payload))
	require.Equal(t, []any{string(bob)}, payload["mismatched"])
}

func TestRejectedTransactionApplied(t *testing.T) {
	c, _ := newChecker(t)
	// nonce 2 is stale, so the executor would not have applied it
	claimed := []types.AccountState{
		state(alice, 9_500, 0, 4),
		state(bob, 900, 0, 0),
		state(carol, 7, 100, 1),
	}
	proof, err := c.Check(context.Background(), preState(), transfer(400, 2), claimed)
	require.ErrorIs(t, err, errcode.ErrFraudDetected)
	require.Equal(t, "nonce mismatch", proof.Rejection)
	require.Equal(t, proof.Pre, proof.Expected)
	require.ElementsMatch(t, []types.AccountID{alice, bob}, proof.Mismatched())
}

func TestOverdraftRejected(t *testing.T) {
	c, _ := newChecker(t)
	pre := preState()
	proof, err := c.Check(context.Background(), pre, transfer(9_950, 3), pre)
	require.NoError(t, err)
	require.Nil(t, proof)
}

func TestStakeAndUnstake(t *testing.T) {
	c, _ := newChecker(t)
	stake := &types.Transaction{Sender: carol, Type: types.TxUnstake, Amount: big.NewInt(60), Nonce: 1}
	claimed := []types.AccountState{
		state(alice, 10_000, 0, 3),
		state(bob, 500, 0, 0),
		// unstake gas is 150 but carol only has 7 available
		state(carol, 67, 40, 2),
	}
	proof, err := c.Check(context.Background(), preState(), stake, claimed)
	require.ErrorIs(t, err, errcode.ErrFraudDetected)
	require.NotEmpty(t, proof.Rejection)
	require.Equal(t, []types.AccountID{carol}, proof.Mismatched())
}

func TestMissingAccountClaimed(t *testing.T) {
	c, _ := newChecker(t)
	claimed := []types.AccountState{
		state(alice, 9_500, 0, 4),
		state(bob, 900, 0, 0),
	}
	proof, err := c.Check(context.Background(), preState(), transfer(400, 3), claimed)
	require.ErrorIs(t, err, errcode.ErrFraudDetected)
	require.Equal(t, []types.AccountID{carol}, proof.Mismatched())
}

func TestInvalidInput(t *testing.T) {
	c, _ := newChecker(t)
	_, err := c.Check(context.Background(), preState(), nil, preState())
	require.ErrorIs(t, err, errcode.ErrInvalidRequest)

	dup := append(preState(), state(alice, 1, 0, 0))
	_, err = c.Check(context.Background(), dup, transfer(400, 3), preState())
	require.ErrorIs(t, err, errcode.ErrInvalidRequest)
}

func TestProofCodec(t *testing.T) {
	c, _ := newChecker(t)
	claimed := []types.AccountState{
		state(alice, 9_400, 0, 4),
		state(bob, 900, 0, 0),
		state(carol, 7, 100, 1),
	}
	proof, err := c.Check(context.Background(), preState(), transfer(400, 3), claimed)
	require.ErrorIs(t, err, errcode.ErrFraudDetected)

	buf, err := codec.Encode(proof)
	require.NoError(t, err)
	var decoded Proof
	require.NoError(t, codec.Decode(buf, &decoded))
	require.Equal(t, proof.Tx.Hash, decoded.Tx.Hash)
	require.Equal(t, proof.Tx.Amount.String(), decoded.Tx.Amount.String())
	require.Equal(t, proof.ExpectedRoot, decoded.ExpectedRoot)
	require.Equal(t, proof.ClaimedRoot, decoded.ClaimedRoot)
	require.Equal(t, proof.Mismatched(), decoded.Mismatched())
	require.Len(t, decoded.Pre, len(proof.Pre))
	for i := range proof.Pre {
		require.True(t, proof.Pre[i].Equal(decoded.Pre[i]))
	}
}
