package bridge

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log/logtest"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/sql/custody"
)

func TestDepositTransferWithdraw(t *testing.T) {
	tt := newTester(t)
	ctx := context.Background()
	owner := keys.TestAddress("alice", testNet)
	prev, deposit := tt.depositTx(addressScript(t, owner), 1_000_000)
	depositTxID := deposit.TxHash().String()

	tt.expectUnspent(l1.Unspent{TxID: depositTxID, Vout: 0, Value: 10_000, Confirmations: 6})
	tt.expectTx(deposit)
	tt.expectTx(prev)
	tt.client.EXPECT().GetTxOut(gomock.Any(), depositTxID, uint32(0)).Return(&l1.TxOut{Value: 10_000}, nil)
	result, err := tt.watcher.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, New: 1, Claimed: 1}, result)

	d, err := tt.GetDeposit(ctx, types.DepositID(depositTxID, 0))
	require.NoError(t, err)
	require.Equal(t, types.DepositClaimed, d.Status)
	alice := types.DeriveAccountID(owner)
	require.Equal(t, "10000000", tt.available(alice))

	bob, _, err := tt.ledger.CreateAccount(ctx, keys.TestAddress("bob", testNet), nil)
	require.NoError(t, err)
	exec := executor.New(tt.db, tt.ledger, executor.WithLogger(logtest.New(t)), executor.WithClock(tt.clock))
	req := &executor.Request{
		Sender:    alice,
		Recipient: bob.ID,
		Type:      types.TxTransfer,
		Amount:    big.NewInt(10_000),
		Nonce:     0,
	}
	digest := req.SigningHash()
	req.Signature, err = keys.NewTestSigner("alice").Sign(ctx, keys.SignRequest{
		Locator: "alice",
		Digest:  digest,
		KeyPath: true,
	})
	require.NoError(t, err)
	receipt, err := exec.ExecuteTransaction(ctx, req)
	require.NoError(t, err)
	require.Equal(t, types.TxConfirmed, receipt.Tx.Status)

	gas := receipt.Tx.GasFee.Int64()
	require.Equal(t, big.NewInt(10_000_000-10_000-gas).String(), tt.available(alice))
	require.Equal(t, "10000", tt.available(bob.ID))
	account, err := tt.ledger.GetAccount(ctx, ledger.ID(alice))
	require.NoError(t, err)
	require.Equal(t, uint64(1), account.Nonce)

	dest := keys.TestAddress("dest", testNet)
	requested := tt.clock.Now()
	w, err := tt.RequestWithdrawal(ctx, alice, big.NewInt(500_000), dest)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10_000_000-10_000-gas-500_000).String(), tt.available(alice))
	require.True(t, w.Deadline.Equal(requested.Add(86_400*time.Second)))
	require.Equal(t, "50000", w.L1Amount.String())

	completed, err := tt.ProcessWithdrawals(ctx)
	require.NoError(t, err)
	require.Zero(t, completed)
	tt.clock.Advance(86_399 * time.Second)
	completed, err = tt.ProcessWithdrawals(ctx)
	require.NoError(t, err)
	require.Zero(t, completed)

	tt.clock.Advance(time.Second)
	tt.expectUnspent(l1.Unspent{TxID: depositTxID, Vout: 0, Value: 10_000, Confirmations: 7})
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(2.0, nil)
	var broadcast *wire.MsgTx
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *wire.MsgTx) (string, error) {
			broadcast = tx
			return tx.TxHash().String(), nil
		})
	completed, err = tt.ProcessWithdrawals(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	got, err := tt.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalCompleted, got.Status)
	require.Equal(t, broadcast.TxHash().String(), got.L1TxID)
	require.Equal(t, deposit.TxHash(), broadcast.TxIn[0].PreviousOutPoint.Hash)
	fetcher := txscript.NewCannedPrevOutputFetcher(tt.custody.PkScript, 10_000)
	require.NoError(t, multisig.VerifyInput(broadcast, 0, fetcher))
	require.Equal(t, uint64(50_000), decodePayout(t, broadcast).Allocated(testToken, destinationOutput))

	change, err := custody.Get(tt.db, got.L1TxID, changeOutput)
	require.NoError(t, err)
	require.Equal(t, "950000", change.Tokens.String())
}
