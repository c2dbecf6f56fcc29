package runestone

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/require"
)

func pointer(v uint32) *uint32 { return &v }

func TestRoundTrip(t *testing.T) {
	token := ID{Block: 840_000, Tx: 3}
	r := &Runestone{
		Edicts: []Edict{
			{ID: ID{Block: 840_010, Tx: 1}, Amount: 5, Output: 1},
			{ID: token, Amount: 1_000_000, Output: 0},
			{ID: ID{Block: 840_000, Tx: 7}, Amount: 2, Output: 0},
		},
		Pointer: pointer(2),
	}
	script, err := r.Script()
	require.NoError(t, err)

	decoded, err := Decode(script)
	require.NoError(t, err)
	require.Equal(t, uint32(2), *decoded.Pointer)
	require.Equal(t, []Edict{
		{ID: token, Amount: 1_000_000, Output: 0},
		{ID: ID{Block: 840_000, Tx: 7}, Amount: 2, Output: 0},
		{ID: ID{Block: 840_010, Tx: 1}, Amount: 5, Output: 1},
	}, decoded.Edicts)
	require.Equal(t, uint64(1_000_000), decoded.Allocated(token, 0))
	require.Zero(t, decoded.Allocated(token, 1))
}

func TestEncodingLayout(t *testing.T) {
	r := &Runestone{
		Edicts:  []Edict{{ID: ID{Block: 2, Tx: 1}, Amount: 300, Output: 0}},
		Pointer: pointer(2),
	}
	script, err := r.Script()
	require.NoError(t, err)
	// OP_RETURN OP_13 <push 8> 22 2 0 2 1 (300 as 0xac 0x02) 0
	require.Equal(t, []byte{
		txscript.OP_RETURN, txscript.OP_13, txscript.OP_DATA_8,
		22, 2, 0, 2, 1, 0xac, 0x02, 0,
	}, script)
}

func TestDecodeRejects(t *testing.T) {
	anchor, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).AddData([]byte("BL2A")).Script()
	require.NoError(t, err)
	_, err = Decode(anchor)
	require.ErrorIs(t, err, ErrNotRunestone)

	_, err = Decode([]byte{txscript.OP_1})
	require.ErrorIs(t, err, ErrNotRunestone)

	for _, payload := range [][]byte{
		{22},         // tag without value
		{0, 1, 1, 1}, // incomplete edict
		{0x80},       // truncated varint
	} {
		script, err := txscript.NewScriptBuilder().
			AddOp(txscript.OP_RETURN).AddOp(txscript.OP_13).AddData(payload).Script()
		require.NoError(t, err)
		_, err = Decode(script)
		require.ErrorIs(t, err, ErrMalformed, "%x", payload)
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID("840000:3")
	require.NoError(t, err)
	require.Equal(t, ID{Block: 840_000, Tx: 3}, id)
	require.Equal(t, "840000:3", id.String())

	for _, bad := range []string{"840000", "a:1", "1:4294967296"} {
		_, err := ParseID(bad)
		require.Error(t, err, bad)
	}
}
