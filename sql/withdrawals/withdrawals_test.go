package withdrawals

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/statesql"
)

func newWithdrawal(created time.Time) *types.Withdrawal {
	return &types.Withdrawal{
		ID:        uuid.NewString(),
		AccountID: types.DeriveAccountID("owner"),
		Credits:   big.NewInt(5000),
		L1Amount:  big.NewInt(5000),
		L1Address: "bc1pdestination",
		Deadline:  created.Add(types.ChallengePeriod),
		Status:    types.WithdrawalPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestExecutableRespectsDeadlineAndChallenge(t *testing.T) {
	db := statesql.InMemory()
	created := time.Unix(10_000, 0)
	a := newWithdrawal(created)
	b := newWithdrawal(created.Add(time.Hour))
	c := newWithdrawal(created)
	for _, w := range []*types.Withdrawal{a, b, c} {
		require.NoError(t, Add(db, w))
	}
	require.NoError(t, Challenge(db, c.ID, created))

	rst, err := Executable(db, created.Add(types.ChallengePeriod-time.Nanosecond), 10)
	require.NoError(t, err)
	require.Empty(t, rst)

	rst, err = Executable(db, a.Deadline, 10)
	require.NoError(t, err)
	require.Len(t, rst, 1)
	require.Equal(t, a.ID, rst[0].ID)

	rst, err = Executable(db, b.Deadline, 10)
	require.NoError(t, err)
	require.Len(t, rst, 2)
}

func TestFinish(t *testing.T) {
	db := statesql.InMemory()
	now := time.Unix(10_000, 0)
	ok := newWithdrawal(now)
	bad := newWithdrawal(now)
	require.NoError(t, Add(db, ok))
	require.NoError(t, Add(db, bad))

	require.NoError(t, Complete(db, ok.ID, "deadbeef", now))
	require.ErrorIs(t, Complete(db, ok.ID, "deadbeef", now), sql.ErrNotFound)
	require.ErrorIs(t, Challenge(db, ok.ID, now), sql.ErrNotFound)
	require.NoError(t, Fail(db, bad.ID, "broadcast rejected", now))

	got, err := Get(db, ok.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalCompleted, got.Status)
	require.Equal(t, "deadbeef", got.L1TxID)
	require.Empty(t, got.Error)

	got, err = Get(db, bad.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalFailed, got.Status)
	require.Equal(t, "broadcast rejected", got.Error)

	rst, err := ByAccount(db, ok.AccountID, 10)
	require.NoError(t, err)
	require.Len(t, rst, 2)

	_, err = Get(db, "nope")
	require.ErrorIs(t, err, sql.ErrNotFound)
}
