package ledger

import (
	"errors"
	"fmt"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/accounts"
)

// LookupKind selects how Lookup.Value is interpreted.
type LookupKind uint8

const (
	// ByID looks an account up by its L2 id.
	ByID LookupKind = iota
	// ByAddress looks an account up by its L1 owner address.
	ByAddress
)

func (k LookupKind) String() string {
	switch k {
	case ByID:
		return "id"
	case ByAddress:
		return "address"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Lookup is a tagged account key.
type Lookup struct {
	Kind  LookupKind
	Value string
}

// ID is a lookup by account id.
func ID(id types.AccountID) Lookup {
	return Lookup{Kind: ByID, Value: string(id)}
}

// Address is a lookup by L1 owner address.
func Address(l1Address string) Lookup {
	return Lookup{Kind: ByAddress, Value: l1Address}
}

func (l Lookup) String() string {
	return l.Kind.String() + ":" + l.Value
}

// Resolve loads the account named by l.
func Resolve(db sql.Executor, l Lookup) (*types.Account, error) {
	var (
		account *types.Account
		err     error
	)
	switch l.Kind {
	case ByID:
		account, err = accounts.Get(db, types.AccountID(l.Value))
	case ByAddress:
		account, err = accounts.GetByAddress(db, l.Value)
	default:
		return nil, errcode.New(errcode.CodeInvalidRequest, "unknown lookup kind %d", l.Kind)
	}
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "account %s", l)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
