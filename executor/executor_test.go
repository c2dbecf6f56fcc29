package executor

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log/logtest"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/statesql"
	"github.com/btcl2/l2node/sql/transactions"
)

var testNet = &chaincfg.RegressionNetParams

type tester struct {
	*Executor
	t      *testing.T
	db     *sql.Database
	ledger *ledger.Ledger
	clock  clockwork.FakeClock
	signer *keys.TestSigner
}

func newTester(t *testing.T) *tester {
	t.Helper()
	db := statesql.InMemory()
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	logger := logtest.New(t)
	l := ledger.New(db, ledger.WithLogger(logger), ledger.WithClock(clock), ledger.WithNetwork(testNet))
	return &tester{
		Executor: New(db, l, WithLogger(logger), WithClock(clock)),
		t:        t,
		db:       db,
		ledger:   l,
		clock:    clock,
		signer:   keys.NewTestSigner("alice", "bob"),
	}
}

func (tt *tester) account(name string, balance int64) types.AccountID {
	account, _, err := tt.ledger.CreateAccount(context.Background(), keys.TestAddress(keys.Locator(name), testNet), nil)
	require.NoError(tt.t, err)
	require.NoError(tt.t, tt.ledger.UpdateBalance(context.Background(), account.ID, big.NewInt(balance)))
	return account.ID
}

func (tt *tester) request(signer string, req *Request) *Request {
	digest := req.SigningHash()
	sig, err := tt.signer.Sign(context.Background(), keys.SignRequest{
		Locator: keys.Locator(signer),
		Digest:  digest,
		KeyPath: true,
	})
	require.NoError(tt.t, err)
	req.Signature = sig
	return req
}

func (tt *tester) balance(id types.AccountID) types.Balance {
	b, err := tt.ledger.GetBalance(context.Background(), ledger.ID(id))
	require.NoError(tt.t, err)
	return b
}

func (tt *tester) supply() *big.Int {
	states, err := tt.ledger.States(context.Background())
	require.NoError(tt.t, err)
	total := new(big.Int)
	for _, s := range states {
		total.Add(total, s.Balance)
		total.Add(total, s.Staked)
	}
	return total
}

func TestEstimateGas(t *testing.T) {
	tt := newTester(t)
	for typ, fee := range map[types.TxType]int64{
		types.TxTransfer: 100,
		types.TxBurn:     50,
		types.TxStake:    150,
		types.TxUnstake:  150,
	} {
		got, err := tt.EstimateGas(typ)
		require.NoError(t, err)
		require.Equal(t, fee, got.Int64(), typ)
	}
	_, err := tt.EstimateGas("mint")
	require.ErrorIs(t, err, errcode.ErrInvalidRequest)
}

func TestTransfer(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 1_000)
	bob := tt.account("bob", 0)

	receipt, err := tt.ExecuteTransaction(context.Background(), tt.request("alice", &Request{
		Sender:    alice,
		Recipient: bob,
		Type:      types.TxTransfer,
		Amount:    big.NewInt(400),
	}))
	require.NoError(t, err)
	require.Equal(t, types.TxConfirmed, receipt.Tx.Status)
	require.Equal(t, "100", receipt.Tx.GasFee.String())
	require.Equal(t, "50", receipt.Burned.String())
	require.Equal(t, "50", receipt.ValidatorShare.String())

	require.Equal(t, "500", tt.balance(alice).Available.String())
	require.Equal(t, uint64(1), tt.balance(alice).Nonce)
	require.Equal(t, "400", tt.balance(bob).Available.String())
	require.Zero(t, tt.balance(bob).Nonce)

	stored, err := transactions.Get(tt.db, receipt.Tx.Hash)
	require.NoError(t, err)
	require.Equal(t, receipt.Tx.Hash, stored.Hash)
	require.Equal(t, types.TxConfirmed, stored.Status)
	require.Zero(t, stored.BatchID)
	require.True(t, stored.ConfirmedAt.Equal(tt.clock.Now()))
}

func TestNonceMonotonicity(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)

	const n = 5
	for i := uint64(0); i < n; i++ {
		_, err := tt.ExecuteTransaction(context.Background(), tt.request("alice", &Request{
			Sender:    alice,
			Recipient: bob,
			Type:      types.TxTransfer,
			Amount:    big.NewInt(10),
			Nonce:     i,
		}))
		require.NoError(t, err)
		tt.clock.Advance(time.Second)
	}
	before := tt.balance(alice)
	require.Equal(t, uint64(n), before.Nonce)

	for _, nonce := range []uint64{0, n - 1, n + 1} {
		_, err := tt.ExecuteTransaction(context.Background(), tt.request("alice", &Request{
			Sender:    alice,
			Recipient: bob,
			Type:      types.TxTransfer,
			Amount:    big.NewInt(10),
			Nonce:     nonce,
		}))
		require.ErrorIs(t, err, errcode.ErrInvalidNonce)
	}
	require.Equal(t, before, tt.balance(alice))

	count, err := transactions.CountUnbatched(tt.db)
	require.NoError(t, err)
	require.Equal(t, n, count)
}

func TestConservation(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 10_000)
	start := tt.supply()

	gas := new(big.Int)
	steps := []struct {
		signer string
		req    Request
	}{
		{"alice", Request{Sender: alice, Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(700)}},
		{"bob", Request{Sender: bob, Type: types.TxStake, Amount: big.NewInt(2_000)}},
		{"alice", Request{Sender: alice, Type: types.TxBurn, Amount: big.NewInt(300), Nonce: 1}},
		{"bob", Request{Sender: bob, Type: types.TxUnstake, Amount: big.NewInt(500), Nonce: 1}},
	}
	burnedAmount := big.NewInt(300)
	for _, step := range steps {
		req := step.req
		receipt, err := tt.ExecuteTransaction(context.Background(), tt.request(step.signer, &req))
		require.NoError(t, err)
		gas.Add(gas, receipt.Tx.GasFee)
	}

	expected := new(big.Int).Sub(start, gas)
	expected.Sub(expected, burnedAmount)
	require.Equal(t, expected.String(), tt.supply().String())
	require.Equal(t, "1500", tt.balance(bob).Staked.String())
}

func TestRejections(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 150)
	bob := tt.account("bob", 0)

	addr, err := btcutil.NewAddressWitnessPubKeyHash(make([]byte, 20), testNet)
	require.NoError(t, err)
	keyless, _, err := tt.ledger.CreateAccount(context.Background(), addr.EncodeAddress(), nil)
	require.NoError(t, err)
	require.NoError(t, tt.ledger.UpdateBalance(context.Background(), keyless.ID, big.NewInt(1_000)))

	for _, tc := range []struct {
		desc   string
		signer string
		req    Request
		err    error
	}{
		{
			desc:   "unknown sender",
			signer: "alice",
			req:    Request{Sender: types.DeriveAccountID("ghost"), Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(1)},
			err:    errcode.ErrNotFound,
		},
		{
			desc:   "unknown recipient",
			signer: "alice",
			req:    Request{Sender: alice, Recipient: types.DeriveAccountID("ghost"), Type: types.TxTransfer, Amount: big.NewInt(1)},
			err:    errcode.ErrNotFound,
		},
		{
			desc:   "amount plus gas exceeds balance",
			signer: "alice",
			req:    Request{Sender: alice, Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(51)},
			err:    errcode.ErrInsufficientBalance,
		},
		{
			desc:   "unstake without stake",
			signer: "alice",
			req:    Request{Sender: alice, Type: types.TxUnstake, Amount: big.NewInt(1)},
			err:    errcode.ErrInsufficientStake,
		},
		{
			desc:   "signed by another key",
			signer: "bob",
			req:    Request{Sender: alice, Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(1)},
			err:    errcode.ErrInvalidSignature,
		},
		{
			desc:   "sender without key",
			signer: "alice",
			req:    Request{Sender: keyless.ID, Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(1)},
			err:    errcode.ErrInvalidSignature,
		},
		{
			desc:   "zero amount",
			signer: "alice",
			req:    Request{Sender: alice, Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(0)},
			err:    errcode.ErrInvalidAmount,
		},
		{
			desc:   "missing recipient",
			signer: "alice",
			req:    Request{Sender: alice, Type: types.TxTransfer, Amount: big.NewInt(1)},
			err:    errcode.ErrInvalidRequest,
		},
		{
			desc:   "unknown type",
			signer: "alice",
			req:    Request{Sender: alice, Type: "mint", Amount: big.NewInt(1)},
			err:    errcode.ErrInvalidRequest,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			req := tc.req
			_, err := tt.ExecuteTransaction(context.Background(), tt.request(tc.signer, &req))
			require.ErrorIs(t, err, tc.err)
		})
	}

	require.Equal(t, "150", tt.balance(alice).Available.String())
	require.Zero(t, tt.balance(alice).Nonce)
	require.Zero(t, tt.balance(bob).Available.Sign())
	count, err := transactions.CountUnbatched(tt.db)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestTamperedSignature(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 1_000)
	bob := tt.account("bob", 0)

	req := tt.request("alice", &Request{Sender: alice, Recipient: bob, Type: types.TxTransfer, Amount: big.NewInt(10)})
	req.Amount = big.NewInt(11)
	_, err := tt.ExecuteTransaction(context.Background(), req)
	require.ErrorIs(t, err, errcode.ErrInvalidSignature)
}

func TestConcurrentSameNonce(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		req := tt.request("alice", &Request{
			Sender:    alice,
			Recipient: bob,
			Type:      types.TxTransfer,
			Amount:    big.NewInt(int64(i + 1)),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tt.ExecuteTransaction(context.Background(), req)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, succeeded)
	require.Equal(t, uint64(1), tt.balance(alice).Nonce)
}

func TestApply(t *testing.T) {
	account := types.NewAccount("owner", time.Time{})
	account.Balance = big.NewInt(1_000)

	require.NoError(t, Apply(account, types.TxStake, big.NewInt(300), big.NewInt(150)))
	require.Equal(t, "550", account.Balance.String())
	require.Equal(t, "300", account.Staked.String())
	require.Equal(t, uint64(1), account.Nonce)

	require.ErrorIs(t, Apply(account, types.TxUnstake, big.NewInt(301), big.NewInt(150)), errcode.ErrInsufficientStake)
	require.ErrorIs(t, Apply(account, types.TxBurn, big.NewInt(500), big.NewInt(51)), errcode.ErrInsufficientBalance)
	require.Equal(t, uint64(1), account.Nonce)
	require.Equal(t, "550", account.Balance.String())
}

func TestSplitGas(t *testing.T) {
	burned, share := SplitGas(big.NewInt(101), 50)
	require.Equal(t, "50", burned.String())
	require.Equal(t, "51", share.String())

	burned, share = SplitGas(big.NewInt(100), 100)
	require.Equal(t, "100", burned.String())
	require.Zero(t, share.Sign())
}
