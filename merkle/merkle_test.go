package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btcl2/l2node/common/types"
)

func leaves(n int) []types.Hash32 {
	rst := make([]types.Hash32, n)
	for i := range rst {
		rst[i] = types.CalcHash32([]byte(fmt.Sprintf("leaf-%d", i)))
	}
	return rst
}

func TestRootShapes(t *testing.T) {
	require.Equal(t, EmptyRoot, Root(nil))

	one := leaves(1)
	require.Equal(t, one[0], Root(one))

	two := leaves(2)
	require.Equal(t, parent(two[0], two[1]), Root(two))

	three := leaves(3)
	require.Equal(t,
		parent(parent(three[0], three[1]), parent(three[2], three[2])),
		Root(three),
	)
}

func TestProofRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 13} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			ls := leaves(n)
			tree := New(ls)
			root := tree.Root()
			for i, leaf := range ls {
				proof, err := tree.Proof(i)
				require.NoError(t, err)
				require.True(t, Verify(leaf, proof, root), "leaf %d", i)
				require.False(t, Verify(types.CalcHash32([]byte("other")), proof, root))
			}
		})
	}
}

func TestTamperedLeafChangesRoot(t *testing.T) {
	ls := leaves(6)
	root := Root(ls)
	for i := range ls {
		tampered := append([]types.Hash32(nil), ls...)
		tampered[i][0] ^= 0xff
		require.NotEqual(t, root, Root(tampered), "leaf %d", i)
	}
}

func TestProofOutOfRange(t *testing.T) {
	tree := New(leaves(3))
	_, err := tree.Proof(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = tree.Proof(-1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = New(nil).Proof(0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestNewDoesNotRetainInput(t *testing.T) {
	ls := leaves(4)
	tree := New(ls)
	root := tree.Root()
	ls[0][0] ^= 0xff
	require.Equal(t, root, tree.Root())
}
