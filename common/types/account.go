package types

import (
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/btcl2/l2node/hash"
)

// AccountIDPrefix marks L2 account identifiers.
const AccountIDPrefix = "l2"

// accountIDHashLen is the number of digest bytes kept in an account id.
const accountIDHashLen = 20

// AccountID identifies an L2 account. It is derived from the L1 owner
// address and never changes.
type AccountID string

// DeriveAccountID maps an L1 address to its L2 account id.
func DeriveAccountID(l1Address string) AccountID {
	digest := hash.Sum([]byte(l1Address))
	return AccountID(AccountIDPrefix + hex.EncodeToString(digest[:accountIDHashLen]))
}

// Valid checks the prefix and length of the id.
func (id AccountID) Valid() bool {
	s := string(id)
	if !strings.HasPrefix(s, AccountIDPrefix) || len(s) != len(AccountIDPrefix)+2*accountIDHashLen {
		return false
	}
	_, err := hex.DecodeString(s[len(AccountIDPrefix):])
	return err == nil
}

// String implements fmt.Stringer.
func (id AccountID) String() string { return string(id) }

// Account is the ledger state of one L2 account.
type Account struct {
	ID        AccountID
	L1Address string
	Balance   *big.Int
	Staked    *big.Int
	Locked    *big.Int
	Nonce     uint64
	// PublicKey is the 32-byte x-only key that verifies the account's
	// transactions. Nil when the owner address does not commit to a key.
	PublicKey []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount returns an empty account owned by l1Address.
func NewAccount(l1Address string, now time.Time) *Account {
	return &Account{
		ID:        DeriveAccountID(l1Address),
		L1Address: l1Address,
		Balance:   new(big.Int),
		Staked:    new(big.Int),
		Locked:    new(big.Int),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Snapshot returns the balance view of the account.
func (a *Account) Snapshot() Balance {
	return Balance{
		Available: CopyAmount(a.Balance),
		Staked:    CopyAmount(a.Staked),
		Locked:    CopyAmount(a.Locked),
		Nonce:     a.Nonce,
	}
}

// Balance is the balance view returned by the ledger.
type Balance struct {
	Available *big.Int
	Staked    *big.Int
	Locked    *big.Int
	Nonce     uint64
}

// AccountState is the tuple committed to by the state root.
type AccountState struct {
	ID      AccountID
	Balance *big.Int
	Staked  *big.Int
	Nonce   uint64
}

// Leaf returns the canonical leaf encoding hashed into the state tree:
// id, balance, stake and nonce in decimal, separated by zero bytes.
func (s AccountState) Leaf() Hash32 {
	sep := []byte{0}
	return CalcHash32(
		[]byte(s.ID), sep,
		[]byte(AmountString(s.Balance)), sep,
		[]byte(AmountString(s.Staked)), sep,
		[]byte(new(big.Int).SetUint64(s.Nonce).String()),
	)
}

// Equal compares all committed fields.
func (s AccountState) Equal(other AccountState) bool {
	return s.ID == other.ID &&
		CopyAmount(s.Balance).Cmp(CopyAmount(other.Balance)) == 0 &&
		CopyAmount(s.Staked).Cmp(CopyAmount(other.Staked)) == 0 &&
		s.Nonce == other.Nonce
}

// State returns the committed tuple of the account.
func (a *Account) State() AccountState {
	return AccountState{
		ID:      a.ID,
		Balance: CopyAmount(a.Balance),
		Staked:  CopyAmount(a.Staked),
		Nonce:   a.Nonce,
	}
}
