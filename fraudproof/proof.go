package fraudproof

import (
	"encoding/json"
	"math/big"

	"github.com/spacemeshos/go-scale"

	"github.com/btcl2/l2node/common/types"
)

// Disputed is the part of a transaction that determines its state transition.
type Disputed struct {
	Hash      types.Hash32
	Sender    types.AccountID
	Recipient types.AccountID
	Type      types.TxType
	Amount    *big.Int
	GasFee    *big.Int
	Nonce     uint64
}

// FromTransaction extracts the disputed fields of tx.
func FromTransaction(tx *types.Transaction) Disputed {
	return Disputed{
		Hash:      tx.Hash,
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Type:      tx.Type,
		Amount:    types.CopyAmount(tx.Amount),
		GasFee:    types.CopyAmount(tx.GasFee),
		Nonce:     tx.Nonce,
	}
}

func (d *Disputed) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeByteArray(enc, d.Hash[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, s := range []string{string(d.Sender), string(d.Recipient), string(d.Type)} {
		n, err := types.EncodeText(enc, s)
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, v := range []*big.Int{d.Amount, d.GasFee} {
		n, err := types.EncodeAmount(enc, v)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, d.Nonce)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (d *Disputed) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		n, err := scale.DecodeByteArray(dec, d.Hash[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, dst := range []*string{(*string)(&d.Sender), (*string)(&d.Recipient), (*string)(&d.Type)} {
		field, n, err := types.DecodeText(dec)
		if err != nil {
			return total, err
		}
		total += n
		*dst = field
	}
	for _, dst := range []**big.Int{&d.Amount, &d.GasFee} {
		field, n, err := types.DecodeAmount(dec)
		if err != nil {
			return total, err
		}
		total += n
		*dst = field
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		d.Nonce = field
	}
	return total, nil
}

// Proof shows that a claimed post-state does not follow from re-executing
// Tx on Pre. State lists hold only the accounts the transaction touches or
// that differ, ordered by id. The roots cover the full state sets.
type Proof struct {
	Tx           Disputed
	Pre          []types.AccountState
	Expected     []types.AccountState
	Claimed      []types.AccountState
	ExpectedRoot types.Hash32
	ClaimedRoot  types.Hash32
	// Rejection is set when re-execution rejects the transaction, in which
	// case Expected equals Pre.
	Rejection string
}

// Mismatched returns the ids whose expected and claimed states differ.
func (p *Proof) Mismatched() []types.AccountID {
	claimed := make(map[types.AccountID]types.AccountState, len(p.Claimed))
	for _, s := range p.Claimed {
		claimed[s.ID] = s
	}
	var rst []types.AccountID
	seen := map[types.AccountID]struct{}{}
	for _, s := range p.Expected {
		seen[s.ID] = struct{}{}
		if c, ok := claimed[s.ID]; !ok || !c.Equal(s) {
			rst = append(rst, s.ID)
		}
	}
	for _, s := range p.Claimed {
		if _, ok := seen[s.ID]; !ok {
			rst = append(rst, s.ID)
		}
	}
	return rst
}

func (p *Proof) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := p.Tx.EncodeScale(enc)
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, states := range [][]types.AccountState{p.Pre, p.Expected, p.Claimed} {
		n, err := scale.EncodeStructSlice(enc, states)
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, root := range []types.Hash32{p.ExpectedRoot, p.ClaimedRoot} {
		n, err := scale.EncodeByteArray(enc, root[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := types.EncodeText(enc, p.Rejection)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (p *Proof) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		n, err := p.Tx.DecodeScale(dec)
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, dst := range []*[]types.AccountState{&p.Pre, &p.Expected, &p.Claimed} {
		field, n, err := scale.DecodeStructSlice[types.AccountState](dec)
		if err != nil {
			return total, err
		}
		total += n
		*dst = field
	}
	for _, root := range []*types.Hash32{&p.ExpectedRoot, &p.ClaimedRoot} {
		n, err := scale.DecodeByteArray(dec, root[:])
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		field, n, err := types.DecodeText(dec)
		if err != nil {
			return total, err
		}
		total += n
		p.Rejection = field
	}
	return total, nil
}

// StateJSON renders an account state with decimal string amounts.
type StateJSON struct {
	ID      types.AccountID `json:"id"`
	Balance string          `json:"balance"`
	Staked  string          `json:"staked"`
	Nonce   uint64          `json:"nonce"`
}

func (s StateJSON) State() (types.AccountState, bool) {
	balance, ok := new(big.Int).SetString(s.Balance, 10)
	if !ok || balance.Sign() < 0 {
		return types.AccountState{}, false
	}
	staked, ok := new(big.Int).SetString(s.Staked, 10)
	if !ok || staked.Sign() < 0 {
		return types.AccountState{}, false
	}
	return types.AccountState{ID: s.ID, Balance: balance, Staked: staked, Nonce: s.Nonce}, true
}

func renderStates(states []types.AccountState) []StateJSON {
	rst := make([]StateJSON, 0, len(states))
	for _, s := range states {
		rst = append(rst, StateJSON{
			ID:      s.ID,
			Balance: types.AmountString(s.Balance),
			Staked:  types.AmountString(s.Staked),
			Nonce:   s.Nonce,
		})
	}
	return rst
}

type txJSON struct {
	Hash      types.Hash32    `json:"hash"`
	Sender    types.AccountID `json:"sender"`
	Recipient types.AccountID `json:"recipient,omitempty"`
	Type      types.TxType    `json:"type"`
	Amount    string          `json:"amount"`
	GasFee    string          `json:"gas_fee"`
	Nonce     uint64          `json:"nonce"`
}

type proofJSON struct {
	Tx           txJSON            `json:"tx"`
	Pre          []StateJSON       `json:"pre_state"`
	Expected     []StateJSON       `json:"expected_post_state"`
	Claimed      []StateJSON       `json:"claimed_post_state"`
	ExpectedRoot types.Hash32      `json:"expected_root"`
	ClaimedRoot  types.Hash32      `json:"claimed_root"`
	Mismatched   []types.AccountID `json:"mismatched"`
	Rejection    string            `json:"rejection,omitempty"`
}

// MarshalJSON renders the proof for the audit log and the API.
func (p *Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal(proofJSON{
		Tx: txJSON{
			Hash:      p.Tx.Hash,
			Sender:    p.Tx.Sender,
			Recipient: p.Tx.Recipient,
			Type:      p.Tx.Type,
			Amount:    types.AmountString(p.Tx.Amount),
			GasFee:    types.AmountString(p.Tx.GasFee),
			Nonce:     p.Tx.Nonce,
		},
		Pre:          renderStates(p.Pre),
		Expected:     renderStates(p.Expected),
		Claimed:      renderStates(p.Claimed),
		ExpectedRoot: p.ExpectedRoot,
		ClaimedRoot:  p.ClaimedRoot,
		Mismatched:   p.Mismatched(),
		Rejection:    p.Rejection,
	})
}
