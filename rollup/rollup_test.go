package rollup

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/consensus"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/l1/mocks"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log/logtest"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/statesql"
	"github.com/btcl2/l2node/sql/validators"
)

var testNet = &chaincfg.RegressionNetParams

const leaderKey = keys.Locator("leader")

type authority struct {
	mu     sync.Mutex
	leader bool
	term   uint64
	index  uint64
	calls  int
}

func (a *authority) IsLeader() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.leader
}

func (a *authority) AuthorizeBatch(context.Context) (consensus.Authorization, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if !a.leader {
		return consensus.Authorization{}, errcode.New(errcode.CodeNotLeader, "not the leader")
	}
	a.index++
	return consensus.Authorization{Term: a.term, Index: a.index}, nil
}

type tester struct {
	*Aggregator
	t         *testing.T
	db        *sql.Database
	ledger    *ledger.Ledger
	executor  *executor.Executor
	authority *authority
	client    *mocks.MockClient
	clock     clockwork.FakeClock
	signer    *keys.TestSigner
	nonces    map[types.AccountID]uint64
}

func newTester(t *testing.T) *tester {
	t.Helper()
	db := statesql.InMemory()
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	logger := logtest.New(t)
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	signer := keys.NewTestSigner(leaderKey, "alice", "bob", "carol")
	l := ledger.New(db, ledger.WithLogger(logger), ledger.WithClock(clock), ledger.WithNetwork(testNet))
	auth := &authority{leader: true, term: 3}
	client := mocks.NewMockClient(gomock.NewController(t))
	cfg := DefaultConfig()
	cfg.AnchorConfirmations = 6
	a, err := New(db, l, auth, client, signer, leaderKey, "v-local",
		WithLogger(logger), WithClock(clock), WithConfig(cfg))
	require.NoError(t, err)
	return &tester{
		Aggregator: a,
		t:          t,
		db:         db,
		ledger:     l,
		executor:   executor.New(db, l, executor.WithLogger(logger), executor.WithClock(clock)),
		authority:  auth,
		client:     client,
		clock:      clock,
		signer:     signer,
		nonces:     map[types.AccountID]uint64{},
	}
}

func (tt *tester) account(name string, balance int64) types.AccountID {
	account, _, err := tt.ledger.CreateAccount(context.Background(), keys.TestAddress(keys.Locator(name), testNet), nil)
	require.NoError(tt.t, err)
	require.NoError(tt.t, tt.ledger.UpdateBalance(context.Background(), account.ID, big.NewInt(balance)))
	return account.ID
}

func (tt *tester) transfer(signer string, from, to types.AccountID, amount int64) *types.Transaction {
	req := &executor.Request{
		Sender:    from,
		Recipient: to,
		Type:      types.TxTransfer,
		Amount:    big.NewInt(amount),
		Nonce:     tt.nonces[from],
	}
	sig, err := tt.signer.Sign(context.Background(), keys.SignRequest{
		Locator: keys.Locator(signer),
		Digest:  req.SigningHash(),
		KeyPath: true,
	})
	require.NoError(tt.t, err)
	req.Signature = sig
	receipt, err := tt.executor.ExecuteTransaction(context.Background(), req)
	require.NoError(tt.t, err)
	tt.nonces[from]++
	return receipt.Tx
}

func (tt *tester) validator(id string, staked int64, status types.ValidatorStatus) {
	pub, err := tt.signer.PublicKey(leaderKey)
	require.NoError(tt.t, err)
	require.NoError(tt.t, validators.Add(tt.db, &types.Validator{
		ID:                 id,
		PublicKey:          keys.XOnly(pub),
		PayoutAddress:      keys.TestAddress(leaderKey, testNet),
		AccountID:          types.AccountID("l2" + id),
		Staked:             big.NewInt(staked),
		RewardsAccumulated: new(big.Int),
		RewardsClaimed:     new(big.Int),
		Status:             status,
		LastActive:         tt.clock.Now(),
		CreatedAt:          tt.clock.Now(),
	}))
}

func (tt *tester) rewards(id string) string {
	v, err := validators.Get(tt.db, id)
	require.NoError(tt.t, err)
	return v.RewardsAccumulated.String()
}

func (tt *tester) currentRoot() types.Hash32 {
	states, err := tt.ledger.States(context.Background())
	require.NoError(tt.t, err)
	return StateRoot(states)
}

func (tt *tester) audit(event string) []auditlog.Entry {
	entries, err := auditlog.List(tt.db, auditlog.Filter{Event: event})
	require.NoError(tt.t, err)
	return entries
}

func (tt *tester) fundingScript() []byte {
	addr, err := tt.FundingAddress()
	require.NoError(tt.t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(tt.t, err)
	return script
}

// expectAnchor sets up a successful publish and returns the broadcast tx
// once it happened.
func (tt *tester) expectAnchor(value int64, height uint64) func() *wire.MsgTx {
	addr, err := tt.FundingAddress()
	require.NoError(tt.t, err)
	tt.client.EXPECT().ListUnspent(gomock.Any(), addr.EncodeAddress()).Return([]l1.Unspent{
		{TxID: chainhash.Hash{1}.String(), Vout: 0, Value: 1_000, Confirmations: 4},
		{TxID: chainhash.Hash{2}.String(), Vout: 1, Value: value, Confirmations: 2},
		{TxID: chainhash.Hash{3}.String(), Vout: 0, Value: 10 * value, Confirmations: 0},
	}, nil)
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), int64(6)).Return(2.0, nil)
	var broadcast *wire.MsgTx
	tt.client.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, tx *wire.MsgTx) (string, error) {
			broadcast = tx
			return tx.TxHash().String(), nil
		})
	tt.client.EXPECT().GetBlockchainInfo(gomock.Any()).Return(&l1.ChainInfo{Chain: "regtest", Blocks: height}, nil)
	return func() *wire.MsgTx { return broadcast }
}

func TestBuildBatchNothingToBatch(t *testing.T) {
	tt := newTester(t)
	batch, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.Nil(t, batch)
	require.Zero(t, tt.authority.calls)
}

func TestBuildBatchRequiresLeader(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 400)

	tt.authority.leader = false
	_, err := tt.BuildBatch(context.Background())
	require.ErrorIs(t, err, errcode.ErrNotLeader)
	_, err = tt.GetBatch(context.Background(), 1)
	require.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestBuildBatchChainsRoots(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	first := tt.transfer("alice", alice, bob, 400)

	b1, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, b1.ID)
	require.Equal(t, types.GenesisRoot, b1.PrevRoot)
	require.Equal(t, tt.currentRoot(), b1.NewRoot)
	require.Equal(t, []types.Hash32{first.Hash}, b1.TxHashes)
	require.Equal(t, types.BatchBuilding, b1.Status)
	require.Equal(t, "100", b1.GasTotal.String())
	// no active validators: the whole share is burned
	require.Equal(t, "100", b1.GasBurned.String())
	require.Equal(t, "0", b1.GasDistributed.String())

	empty, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.Nil(t, empty)

	second := tt.transfer("alice", alice, bob, 100)
	third := tt.transfer("bob", bob, alice, 50)
	b2, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, b2.ID)
	require.Equal(t, b1.NewRoot, b2.PrevRoot)
	require.Equal(t, tt.currentRoot(), b2.NewRoot)
	require.NotEqual(t, b1.NewRoot, b2.NewRoot)

	got, err := tt.GetBatch(context.Background(), 2)
	require.NoError(t, err)
	require.ElementsMatch(t, []types.Hash32{second.Hash, third.Hash}, got.TxHashes)

	headers, err := tt.Batches(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, headers, 2)
	require.Len(t, tt.audit(auditlog.BatchBuilt), 2)
}

func TestBuildBatchCapsSize(t *testing.T) {
	tt := newTester(t)
	tt.cfg.MaxBatchSize = 2
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	for range 3 {
		tt.transfer("alice", alice, bob, 10)
	}
	b1, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, b1.TxHashes, 2)
	b2, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, b2.TxHashes, 1)
}

func TestBuildBatchDistributesByStake(t *testing.T) {
	tt := newTester(t)
	tt.validator("v-local", 300, types.ValidatorActive)
	tt.validator("v-other", 100, types.ValidatorActive)
	tt.validator("v-slashed", 1_000, types.ValidatorSlashed)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 1)
	tt.transfer("alice", alice, bob, 1)

	batch, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "200", batch.GasTotal.String())
	require.Equal(t, "100", batch.GasBurned.String())
	require.Equal(t, "100", batch.GasDistributed.String())
	require.Equal(t, "75", tt.rewards("v-local"))
	require.Equal(t, "25", tt.rewards("v-other"))
	require.Equal(t, "0", tt.rewards("v-slashed"))

	local, err := validators.Get(tt.db, "v-local")
	require.NoError(t, err)
	require.EqualValues(t, 1, local.BlocksValidated)
	other, err := validators.Get(tt.db, "v-other")
	require.NoError(t, err)
	require.Zero(t, other.BlocksValidated)
}

func TestBuildBatchEqualSplitWithoutStake(t *testing.T) {
	tt := newTester(t)
	tt.validator("v1", 0, types.ValidatorActive)
	tt.validator("v2", 0, types.ValidatorActive)
	tt.validator("v3", 0, types.ValidatorActive)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 1)

	batch, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	for _, id := range []string{"v1", "v2", "v3"} {
		require.Equal(t, "16", tt.rewards(id))
	}
	require.Equal(t, "48", batch.GasDistributed.String())
	// 50 burned plus the 2 left over by the split
	require.Equal(t, "52", batch.GasBurned.String())
	require.Equal(t, batch.GasTotal, new(big.Int).Add(batch.GasBurned, batch.GasDistributed))
}

func TestPublish(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 400)
	built, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)

	broadcast := tt.expectAnchor(50_000, 812)
	published, err := tt.Publish(context.Background(), built.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchPublished, published.Status)
	require.EqualValues(t, 812, published.AnchorHeight)

	tx := broadcast()
	require.NotNil(t, tx)
	require.Equal(t, tx.TxHash().String(), published.AnchorTxID)
	require.Len(t, tx.TxIn, 1)
	require.Equal(t, chainhash.Hash{2}, tx.TxIn[0].PreviousOutPoint.Hash)
	require.Len(t, tx.TxOut, 2)
	require.Zero(t, tx.TxOut[0].Value)
	truncated, ok := ParseAnchor(tx.TxOut[0].PkScript)
	require.True(t, ok)
	require.True(t, MatchesAnchor(truncated, built.NewRoot))
	require.Equal(t, tt.fundingScript(), tx.TxOut[1].PkScript)
	require.Less(t, tx.TxOut[1].Value, int64(50_000))
	require.Greater(t, tx.TxOut[1].Value, int64(49_000))

	fetcher := txscript.NewCannedPrevOutputFetcher(tt.fundingScript(), 50_000)
	require.NoError(t, multisig.VerifyInput(tx, 0, fetcher))

	got, err := tt.GetBatch(context.Background(), built.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchPublished, got.Status)
	require.Equal(t, published.AnchorTxID, got.AnchorTxID)
	require.Len(t, tt.audit(auditlog.BatchPublished), 1)

	_, err = tt.Publish(context.Background(), built.ID)
	require.ErrorIs(t, err, errcode.ErrInvalidRequest)
	_, err = tt.Publish(context.Background(), 99)
	require.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestPublishUnderfunded(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 400)
	built, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)

	tt.client.EXPECT().ListUnspent(gomock.Any(), gomock.Any()).Return([]l1.Unspent{
		{TxID: chainhash.Hash{1}.String(), Vout: 0, Value: 600, Confirmations: 4},
	}, nil)
	tt.client.EXPECT().EstimateSmartFee(gomock.Any(), gomock.Any()).Return(0.0, l1.ErrNoEstimate)

	_, err = tt.Publish(context.Background(), built.ID)
	require.ErrorIs(t, err, errNoFunding)
	got, err := tt.GetBatch(context.Background(), built.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchBuilding, got.Status)
}

func TestFinalize(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 400)
	built, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)
	tt.expectAnchor(50_000, 900)
	published, err := tt.Publish(context.Background(), built.ID)
	require.NoError(t, err)

	tt.client.EXPECT().GetRawTransaction(gomock.Any(), published.AnchorTxID).Return(&l1.RawTx{Confirmations: 5}, nil)
	n, err := tt.Finalize(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	tt.client.EXPECT().GetRawTransaction(gomock.Any(), published.AnchorTxID).Return(nil, l1.ErrUnavailable)
	n, err = tt.Finalize(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	tt.client.EXPECT().GetRawTransaction(gomock.Any(), published.AnchorTxID).Return(&l1.RawTx{Confirmations: 6}, nil)
	n, err = tt.Finalize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := tt.GetBatch(context.Background(), built.ID)
	require.NoError(t, err)
	require.Equal(t, types.BatchFinalized, got.Status)
	require.Len(t, tt.audit(auditlog.BatchFinalized), 1)

	n, err = tt.Finalize(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestProduce(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	tt.transfer("alice", alice, bob, 400)

	tt.authority.leader = false
	n, err := tt.Produce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, tt.authority.calls)

	tt.authority.leader = true
	tt.expectAnchor(50_000, 10)
	n, err = tt.Produce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	got, err := tt.GetBatch(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, types.BatchPublished, got.Status)
}

func TestStateProof(t *testing.T) {
	tt := newTester(t)
	alice := tt.account("alice", 10_000)
	bob := tt.account("bob", 0)
	carol := tt.account("carol", 7)
	tt.transfer("alice", alice, bob, 400)
	batch, err := tt.BuildBatch(context.Background())
	require.NoError(t, err)

	for _, id := range []types.AccountID{alice, bob, carol} {
		proof, err := tt.StateProof(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, id, proof.Account.ID)
		require.Equal(t, batch.NewRoot, proof.Root)
		require.True(t, proof.Verify())

		forged := *proof
		forged.Account.Balance = new(big.Int).Add(proof.Account.Balance, big.NewInt(1))
		forged.Leaf = forged.Account.Leaf()
		require.False(t, forged.Verify())
	}

	_, err = tt.StateProof(context.Background(), "l2missing")
	require.ErrorIs(t, err, errcode.ErrNotFound)
}

func TestAnchorPayload(t *testing.T) {
	root := types.CalcHash32([]byte("root"))
	payload := AnchorPayload(root)
	require.Len(t, payload, AnchorSize)
	require.Equal(t, []byte(AnchorTag), payload[:4])
	require.Equal(t, root[:28], payload[4:])

	script, err := txscript.NullDataScript(payload)
	require.NoError(t, err)
	truncated, ok := ParseAnchor(script)
	require.True(t, ok)
	require.True(t, MatchesAnchor(truncated, root))
	require.False(t, MatchesAnchor(truncated, types.CalcHash32([]byte("other"))))

	other, err := txscript.NullDataScript([]byte("not an anchor"))
	require.NoError(t, err)
	_, ok = ParseAnchor(other)
	require.False(t, ok)
}
