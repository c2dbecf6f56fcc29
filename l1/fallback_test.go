package l1_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/l1/mocks"
)

func TestFallbackOnUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockClient(ctrl)
	secondary := mocks.NewMockClient(ctrl)
	client := l1.NewFallback(primary, secondary, zaptest.NewLogger(t))

	primary.EXPECT().
		GetBlockchainInfo(gomock.Any()).
		Return(nil, fmt.Errorf("getblockchaininfo: %w: connection refused", l1.ErrUnavailable))
	secondary.EXPECT().
		GetBlockchainInfo(gomock.Any()).
		Return(&l1.ChainInfo{Blocks: 7}, nil)

	info, err := client.GetBlockchainInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(7), info.Blocks)
}

func TestFallbackKeepsRejections(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockClient(ctrl)
	secondary := mocks.NewMockClient(ctrl)
	client := l1.NewFallback(primary, secondary, zaptest.NewLogger(t))

	rejected := errors.New("txn-mempool-conflict")
	primary.EXPECT().SendRawTransaction(gomock.Any(), gomock.Any()).Return("", rejected)

	_, err := client.SendRawTransaction(context.Background(), nil)
	require.ErrorIs(t, err, rejected)
}

func TestFallbackPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := mocks.NewMockClient(ctrl)
	secondary := mocks.NewMockClient(ctrl)
	client := l1.NewFallback(primary, secondary, zaptest.NewLogger(t))

	primary.EXPECT().GetTxOut(gomock.Any(), "aa", uint32(1)).Return(nil, l1.ErrSpent)
	_, err := client.GetTxOut(context.Background(), "aa", 1)
	require.ErrorIs(t, err, l1.ErrSpent)
}

func TestLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockClient(ctrl)
	client := l1.NewLimited(inner, 1, 1)

	inner.EXPECT().EstimateSmartFee(gomock.Any(), int64(6)).Return(2.5, nil)
	rate, err := client.EstimateSmartFee(context.Background(), 6)
	require.NoError(t, err)
	require.Equal(t, 2.5, rate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.EstimateSmartFee(ctx, 6)
	require.ErrorIs(t, err, context.Canceled)
}
