package bridge

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/btcl2/l2node/bridge/runestone"
	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/l1/mocks"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log/logtest"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/custody"
	"github.com/btcl2/l2node/sql/deposits"
	"github.com/btcl2/l2node/sql/statesql"
)

var (
	testNet   = &chaincfg.RegressionNetParams
	testToken = runestone.ID{Block: 840_000, Tx: 1}
	committee = []keys.Locator{"c1", "c2", "c3"}
)

type tester struct {
	*Bridge
	t       *testing.T
	db      *sql.Database
	ledger  *ledger.Ledger
	client  *mocks.MockClient
	clock   clockwork.FakeClock
	signer  *keys.TestSigner
	custody *multisig.Descriptor
	watcher *Watcher
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token = testToken.String()
	cfg.Rate = 10
	cfg.MinWithdrawal = 100
	cfg.Confirmations = 6
	return cfg
}

func newTester(t *testing.T) *tester {
	t.Helper()
	db := statesql.InMemory()
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	logger := logtest.New(t)
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	signer := keys.NewTestSigner(committee...)
	var xonly [][]byte
	for _, loc := range committee {
		pub, err := signer.PublicKey(loc)
		require.NoError(t, err)
		xonly = append(xonly, keys.XOnly(pub))
	}
	custody, err := multisig.Derive(xonly, testNet)
	require.NoError(t, err)

	l := ledger.New(db, ledger.WithLogger(logger), ledger.WithClock(clock), ledger.WithNetwork(testNet))
	client := mocks.NewMockClient(gomock.NewController(t))
	b, err := New(db, l, client, custody, signer, committee,
		WithLogger(logger), WithClock(clock), WithConfig(testConfig()))
	require.NoError(t, err)
	watcher, err := NewWatcher(b)
	require.NoError(t, err)
	return &tester{
		Bridge:  b,
		t:       t,
		db:      db,
		ledger:  l,
		client:  client,
		clock:   clock,
		signer:  signer,
		custody: custody,
		watcher: watcher,
	}
}

func addressScript(t *testing.T, address string) []byte {
	t.Helper()
	addr, err := btcutil.DecodeAddress(address, testNet)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}

// depositTx returns a funding transaction paying from owner and a
// transaction spending it that sends amount tokens to the custody output 0.
func (tt *tester) depositTx(ownerScript []byte, amount uint64) (*wire.MsgTx, *wire.MsgTx) {
	prev := wire.NewMsgTx(2)
	prev.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{9}, 0), nil, nil))
	prev.AddTxOut(wire.NewTxOut(50_000, ownerScript))

	prevHash := prev.TxHash()
	deposit := wire.NewMsgTx(2)
	deposit.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil, nil))
	deposit.AddTxOut(wire.NewTxOut(10_000, tt.custody.PkScript))
	marker, err := (&runestone.Runestone{
		Edicts: []runestone.Edict{{ID: testToken, Amount: amount, Output: 0}},
	}).Script()
	require.NoError(tt.t, err)
	deposit.AddTxOut(wire.NewTxOut(0, marker))
	return prev, deposit
}

func (tt *tester) expectTx(tx *wire.MsgTx) {
	tt.client.EXPECT().
		GetRawTransaction(gomock.Any(), tx.TxHash().String()).
		Return(&l1.RawTx{Tx: tx, Confirmations: 1}, nil).
		Times(1)
}

func (tt *tester) expectUnspent(unspent ...l1.Unspent) {
	tt.client.EXPECT().ListUnspent(gomock.Any(), tt.custody.String()).Return(unspent, nil)
}

func (tt *tester) available(id types.AccountID) string {
	b, err := tt.ledger.GetBalance(context.Background(), ledger.ID(id))
	require.NoError(tt.t, err)
	return b.Available.String()
}

func TestDepositLifecycle(t *testing.T) {
	tt := newTester(t)
	owner := keys.TestAddress("alice", testNet)
	prev, deposit := tt.depositTx(addressScript(t, owner), 500)
	txid := deposit.TxHash().String()
	id := types.DepositID(txid, 0)

	tt.expectUnspent(l1.Unspent{TxID: txid, Vout: 0, Value: 10_000, Confirmations: 2})
	tt.expectTx(deposit)
	tt.expectTx(prev)
	tt.client.EXPECT().GetTxOut(gomock.Any(), txid, uint32(0)).Return(&l1.TxOut{Value: 10_000}, nil).Times(2)

	result, err := tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, New: 1}, result)

	d, err := tt.GetDeposit(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, types.DepositPending, d.Status)
	require.Equal(t, owner, d.L1Address)
	require.Equal(t, "500", d.Amount.String())

	_, err = tt.ClaimDeposit(context.Background(), id)
	require.ErrorIs(t, err, errcode.ErrInsufficientConfirmations)

	tt.expectUnspent(l1.Unspent{TxID: txid, Vout: 0, Value: 10_000, Confirmations: 6})
	result, err = tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, Claimed: 1}, result)

	account := types.DeriveAccountID(owner)
	require.Equal(t, "5000", tt.available(account))

	// claimed outputs are not looked at again
	tt.expectUnspent(l1.Unspent{TxID: txid, Vout: 0, Value: 10_000, Confirmations: 7})
	result, err = tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1}, result)

	again, err := tt.ClaimDeposit(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, types.DepositClaimed, again.Status)
	require.Equal(t, "5000", again.Credits.String())
	require.Equal(t, "5000", tt.available(account))

	entries, err := auditlog.List(tt.db, auditlog.Filter{Event: auditlog.DepositClaimed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, account, entries[0].AccountID)

	_, err = tt.ClaimDeposit(context.Background(), types.DepositID(txid, 5))
	require.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestDepositDoubleSpend(t *testing.T) {
	tt := newTester(t)
	prev, deposit := tt.depositTx(addressScript(t, keys.TestAddress("alice", testNet)), 500)
	txid := deposit.TxHash().String()

	tt.expectUnspent(l1.Unspent{TxID: txid, Vout: 0, Value: 10_000, Confirmations: 6})
	tt.expectTx(deposit)
	tt.expectTx(prev)
	tt.client.EXPECT().GetTxOut(gomock.Any(), txid, uint32(0)).Return(nil, l1.ErrSpent)

	result, err := tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, Skipped: 1}, result)
	_, err = tt.GetDeposit(context.Background(), types.DepositID(txid, 0))
	require.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestDepositIgnoresCustodyChange(t *testing.T) {
	tt := newTester(t)
	prev, change := tt.depositTx(tt.custody.PkScript, 500)
	txid := change.TxHash().String()

	tt.expectUnspent(l1.Unspent{TxID: txid, Vout: 0, Value: 10_000, Confirmations: 6})
	tt.expectTx(change)
	tt.expectTx(prev)

	result, err := tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, Skipped: 1}, result)
}

func TestDepositWithoutTokens(t *testing.T) {
	tt := newTester(t)
	_, deposit := tt.depositTx(addressScript(t, keys.TestAddress("alice", testNet)), 0)
	txid := deposit.TxHash().String()

	tt.expectUnspent(l1.Unspent{TxID: txid, Vout: 0, Value: 10_000, Confirmations: 6})
	tt.expectTx(deposit)

	result, err := tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, Skipped: 1}, result)
}

func TestPollL1Unavailable(t *testing.T) {
	tt := newTester(t)
	tt.client.EXPECT().ListUnspent(gomock.Any(), gomock.Any()).Return(nil, l1.ErrUnavailable)

	_, err := tt.watcher.Poll(context.Background())
	require.ErrorIs(t, err, l1.ErrUnavailable)
}

func (tt *tester) fundedAccount(name string, credits int64) types.AccountID {
	account, _, err := tt.ledger.CreateAccount(context.Background(), keys.TestAddress(keys.Locator(name), testNet), nil)
	require.NoError(tt.t, err)
	require.NoError(tt.t, tt.ledger.UpdateBalance(context.Background(), account.ID, big.NewInt(credits)))
	return account.ID
}

// claimedDeposit records a claimed deposit of tokens at txid:vout.
func (tt *tester) claimedDeposit(txid chainhash.Hash, vout uint32, tokens int64) {
	funder := keys.TestAddress("funder", testNet)
	now := tt.clock.Now()
	require.NoError(tt.t, deposits.Add(tt.db, &types.Deposit{
		ID:            types.DepositID(txid.String(), vout),
		TxID:          txid.String(),
		Vout:          vout,
		Amount:        big.NewInt(tokens),
		Credits:       big.NewInt(tokens * 10),
		Confirmations: 6,
		Status:        types.DepositClaimed,
		L1Address:     funder,
		AccountID:     types.DeriveAccountID(funder),
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
}

func TestRequestWithdrawal(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	dest := keys.TestAddress("dest", testNet)

	for _, tc := range []struct {
		desc    string
		credits int64
		address string
		err     error
	}{
		{desc: "below minimum", credits: 999, address: dest, err: errcode.ErrBelowMinimum},
		{desc: "insufficient balance", credits: 5_001, address: dest, err: errcode.ErrInsufficientBalance},
		{desc: "zero", credits: 0, address: dest, err: errcode.ErrInvalidAmount},
		{desc: "bad address", credits: 1_000, address: "nope", err: errcode.ErrInvalidRequest},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(tc.credits), tc.address)
			require.ErrorIs(t, err, tc.err)
		})
	}
	require.Equal(t, "5000", tt.available(alice))

	w, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(1_005), dest)
	require.NoError(t, err)
	require.Equal(t, "100", w.L1Amount.String())
	require.True(t, w.Deadline.Equal(tt.clock.Now().Add(24*time.Hour)))
	require.Equal(t, "3995", tt.available(alice))
}

func decodePayout(t *testing.T, tx *wire.MsgTx) *runestone.Runestone {
	t.Helper()
	require.Len(t, tx.TxOut, 3)
	rs, err := runestone.Decode(tx.TxOut[markerOutput].PkScript)
	require.NoError(t, err)
	return rs
}

func TestWithdrawalPayout(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	dest := keys.TestAddress("dest", testNet)

	paid, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), dest)
	require.NoError(t, err)
	challenged, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(1_000), dest)
	require.NoError(t, err)
	_, err = tt.ChallengeWithdrawal(context.Background(), challenged.ID, "disputed")
	require.NoError(t, err)

	completed, err := tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Zero(t, completed)
	_, err = tt.ExecuteWithdrawal(context.Background(), paid.ID)
	require.ErrorIs(t, err, errcode.ErrInvalidRequest)

	tt.clock.Advance(24 * time.Hour)
	tt.signer.Fail("c1", errors.New("hsm offline"))
	custodyTx := chainhash.Hash{7}
	tt.claimedDeposit(custodyTx, 1, 500)
	tt.claimedDeposit(chainhash.Hash{8}, 0, 500)
	tt.client.EXPECT().ListUnspent(gomock.Any(), tt.custody.String()).Return([]l1.Unspent{
		{TxID: custodyTx.String(), Vout: 1, Value: 5_000, Confirmations: 10},
		{TxID: chainhash.Hash{8}.String(), Vout: 0, Value: 90_000, Confirmations: 0},
	}, nil)
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), int64(6)).Return(0.0, l1.ErrNoEstimate)
	var broadcast *wire.MsgTx
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *wire.MsgTx) (string, error) {
			broadcast = tx
			return tx.TxHash().String(), nil
		})

	completed, err = tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	require.NotNil(t, broadcast)
	require.Equal(t, custodyTx, broadcast.TxIn[0].PreviousOutPoint.Hash)
	fetcher := txscript.NewCannedPrevOutputFetcher(tt.custody.PkScript, 5_000)
	require.NoError(t, multisig.VerifyInput(broadcast, 0, fetcher))
	require.Equal(t, addressScript(t, dest), broadcast.TxOut[destinationOutput].PkScript)
	require.Equal(t, int64(546), broadcast.TxOut[destinationOutput].Value)
	require.Equal(t, tt.custody.PkScript, broadcast.TxOut[changeOutput].PkScript)
	rs := decodePayout(t, broadcast)
	require.Equal(t, uint64(200), rs.Allocated(testToken, destinationOutput))
	require.Equal(t, uint32(changeOutput), *rs.Pointer)

	got, err := tt.GetWithdrawal(context.Background(), paid.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalCompleted, got.Status)
	require.Equal(t, broadcast.TxHash().String(), got.L1TxID)

	change, err := custody.Get(tt.db, got.L1TxID, changeOutput)
	require.NoError(t, err)
	require.Equal(t, "300", change.Tokens.String())
	require.Equal(t, paid.ID, change.Withdrawal)

	got, err = tt.GetWithdrawal(context.Background(), challenged.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalPending, got.Status)
	require.True(t, got.Challenged)
}

func TestWithdrawalBroadcastFailure(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	w, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), keys.TestAddress("dest", testNet))
	require.NoError(t, err)
	tt.clock.Advance(25 * time.Hour)

	tt.claimedDeposit(chainhash.Hash{7}, 0, 500)
	tt.client.EXPECT().ListUnspent(gomock.Any(), gomock.Any()).Return([]l1.Unspent{
		{TxID: chainhash.Hash{7}.String(), Vout: 0, Value: 20_000, Confirmations: 3},
	}, nil)
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(2.0, nil)
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).Return("", errors.New("min relay fee not met"))

	_, err = tt.ExecuteWithdrawal(context.Background(), w.ID)
	require.ErrorIs(t, err, errcode.ErrBridgeBroadcastFailure)

	got, err := tt.GetWithdrawal(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalFailed, got.Status)
	require.Contains(t, got.Error, "min relay fee not met")

	// failed withdrawals are not picked up again
	completed, err := tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Zero(t, completed)

	entries, err := auditlog.List(tt.db, auditlog.Filter{Event: auditlog.WithdrawalFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWithdrawalNotEnoughSigners(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	w, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), keys.TestAddress("dest", testNet))
	require.NoError(t, err)
	tt.clock.Advance(24 * time.Hour)
	tt.signer.Fail("c1", errors.New("offline"))
	tt.signer.Fail("c2", errors.New("offline"))

	tt.claimedDeposit(chainhash.Hash{7}, 0, 500)
	tt.client.EXPECT().ListUnspent(gomock.Any(), gomock.Any()).Return([]l1.Unspent{
		{TxID: chainhash.Hash{7}.String(), Vout: 0, Value: 20_000, Confirmations: 3},
	}, nil)
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(2.0, nil)

	_, err = tt.ExecuteWithdrawal(context.Background(), w.ID)
	require.ErrorIs(t, err, errcode.ErrBridgeBroadcastFailure)
	got, err := tt.GetWithdrawal(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalFailed, got.Status)
	require.Contains(t, got.Error, multisig.ErrNotEnoughSignatures.Error())
}

func TestChallengeWithdrawal(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	w, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), keys.TestAddress("dest", testNet))
	require.NoError(t, err)

	_, err = tt.ChallengeWithdrawal(context.Background(), "missing", "x")
	require.ErrorIs(t, err, errcode.ErrNotFound)

	got, err := tt.ChallengeWithdrawal(context.Background(), w.ID, "fraud")
	require.NoError(t, err)
	require.True(t, got.Challenged)
	// challenging twice is harmless
	_, err = tt.ChallengeWithdrawal(context.Background(), w.ID, "fraud")
	require.NoError(t, err)

	tt.clock.Advance(48 * time.Hour)
	_, err = tt.ExecuteWithdrawal(context.Background(), w.ID)
	require.ErrorIs(t, err, errcode.ErrInvalidRequest)
	require.Equal(t, "3000", tt.available(alice))
}

func TestPayoutSkipsUnclaimedDeposit(t *testing.T) {
	tt := newTester(t)
	prev, deposit := tt.depositTx(addressScript(t, keys.TestAddress("bob", testNet)), 5_000)
	depositTxID := deposit.TxHash().String()
	pendingOutput := l1.Unspent{TxID: depositTxID, Vout: 0, Value: 200_000, Confirmations: 2}

	tt.expectUnspent(pendingOutput)
	tt.expectTx(deposit)
	tt.expectTx(prev)
	tt.client.EXPECT().GetTxOut(gomock.Any(), depositTxID, uint32(0)).Return(&l1.TxOut{Value: 200_000}, nil)
	result, err := tt.watcher.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, PollResult{Seen: 1, New: 1}, result)

	alice := tt.fundedAccount("alice", 5_000)
	w, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), keys.TestAddress("dest", testNet))
	require.NoError(t, err)
	tt.clock.Advance(24 * time.Hour)

	tt.expectUnspent(pendingOutput)
	completed, err := tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Zero(t, completed)

	got, err := tt.GetWithdrawal(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalPending, got.Status)
	d, err := tt.GetDeposit(context.Background(), types.DepositID(depositTxID, 0))
	require.NoError(t, err)
	require.Equal(t, types.DepositPending, d.Status)

	claimed := chainhash.Hash{7}
	tt.claimedDeposit(claimed, 0, 500)
	tt.expectUnspent(pendingOutput, l1.Unspent{TxID: claimed.String(), Vout: 0, Value: 20_000, Confirmations: 8})
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(2.0, nil)
	var broadcast *wire.MsgTx
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *wire.MsgTx) (string, error) {
			broadcast = tx
			return tx.TxHash().String(), nil
		})

	completed, err = tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, completed)
	require.Equal(t, claimed, broadcast.TxIn[0].PreviousOutPoint.Hash)
}

func TestSweepStopsWithoutFundedOutput(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	dest := keys.TestAddress("dest", testNet)
	first, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), dest)
	require.NoError(t, err)
	tt.clock.Advance(time.Second)
	second, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(1_000), dest)
	require.NoError(t, err)
	tt.clock.Advance(24 * time.Hour)

	funding := chainhash.Hash{7}
	tt.claimedDeposit(funding, 0, 500)
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(2.0, nil).AnyTimes()
	var payouts []*wire.MsgTx
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *wire.MsgTx) (string, error) {
			payouts = append(payouts, tx)
			return tx.TxHash().String(), nil
		}).AnyTimes()
	change := func(confirmations uint32) []l1.Unspent {
		last := payouts[len(payouts)-1]
		return []l1.Unspent{{
			TxID:          last.TxHash().String(),
			Vout:          changeOutput,
			Value:         last.TxOut[changeOutput].Value,
			Confirmations: confirmations,
		}}
	}

	tt.expectUnspent(l1.Unspent{TxID: funding.String(), Vout: 0, Value: 100_000, Confirmations: 6})
	tt.client.EXPECT().ListUnspent(gomock.Any(), tt.custody.String()).DoAndReturn(
		func(context.Context, string) ([]l1.Unspent, error) { return change(0), nil })
	completed, err := tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, completed)

	got, err := tt.GetWithdrawal(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalCompleted, got.Status)
	got, err = tt.GetWithdrawal(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalPending, got.Status)
	require.Empty(t, got.Error)

	// change below the deposit confirmation depth is not spent
	tt.client.EXPECT().ListUnspent(gomock.Any(), tt.custody.String()).DoAndReturn(
		func(context.Context, string) ([]l1.Unspent, error) { return change(5), nil })
	completed, err = tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Zero(t, completed)

	tt.client.EXPECT().ListUnspent(gomock.Any(), tt.custody.String()).Return(nil, l1.ErrUnavailable)
	_, err = tt.ExecuteWithdrawal(context.Background(), second.ID)
	require.ErrorIs(t, err, l1.ErrUnavailable)
	got, err = tt.GetWithdrawal(context.Background(), second.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalPending, got.Status)

	tt.client.EXPECT().ListUnspent(gomock.Any(), tt.custody.String()).DoAndReturn(
		func(context.Context, string) ([]l1.Unspent, error) { return change(6), nil })
	completed, err = tt.ProcessWithdrawals(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, completed)
	require.Len(t, payouts, 2)
	require.Equal(t, payouts[0].TxHash(), payouts[1].TxIn[0].PreviousOutPoint.Hash)
	require.Equal(t, uint64(100), decodePayout(t, payouts[1]).Allocated(testToken, destinationOutput))

	left, err := custody.Get(tt.db, payouts[1].TxHash().String(), changeOutput)
	require.NoError(t, err)
	require.Equal(t, "200", left.Tokens.String())

	entries, err := auditlog.List(tt.db, auditlog.Filter{Event: auditlog.WithdrawalFailed})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPayoutNeedsTokenBalance(t *testing.T) {
	tt := newTester(t)
	alice := tt.fundedAccount("alice", 5_000)
	w, err := tt.RequestWithdrawal(context.Background(), alice, big.NewInt(2_000), keys.TestAddress("dest", testNet))
	require.NoError(t, err)
	tt.clock.Advance(24 * time.Hour)

	small, large := chainhash.Hash{7}, chainhash.Hash{8}
	tt.claimedDeposit(small, 0, 150)
	tt.claimedDeposit(large, 0, 300)
	smallOutput := l1.Unspent{TxID: small.String(), Vout: 0, Value: 500_000, Confirmations: 9}

	tt.expectUnspent(smallOutput)
	_, err = tt.ExecuteWithdrawal(context.Background(), w.ID)
	require.ErrorIs(t, err, errNoCustodyOutput)
	got, err := tt.GetWithdrawal(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalPending, got.Status)

	tt.expectUnspent(smallOutput, l1.Unspent{TxID: large.String(), Vout: 0, Value: 20_000, Confirmations: 9})
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(2.0, nil)
	var broadcast *wire.MsgTx
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *wire.MsgTx) (string, error) {
			broadcast = tx
			return tx.TxHash().String(), nil
		})
	got, err = tt.ExecuteWithdrawal(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, types.WithdrawalCompleted, got.Status)
	require.Equal(t, large, broadcast.TxIn[0].PreviousOutPoint.Hash)

	change, err := custody.Get(tt.db, got.L1TxID, changeOutput)
	require.NoError(t, err)
	require.Equal(t, "100", change.Tokens.String())
}
