package accounts

import (
	"fmt"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

const fields = `id, l1_address, balance, staked, locked, nonce, pubkey, created_at, updated_at`

func decode(stmt *sql.Statement) *types.Account {
	return &types.Account{
		ID:        types.AccountID(stmt.ColumnText(0)),
		L1Address: stmt.ColumnText(1),
		Balance:   sql.ColumnAmount(stmt, 2),
		Staked:    sql.ColumnAmount(stmt, 3),
		Locked:    sql.ColumnAmount(stmt, 4),
		Nonce:     uint64(stmt.ColumnInt64(5)),
		PublicKey: sql.ColumnBlob(stmt, 6),
		CreatedAt: sql.ColumnTime(stmt, 7),
		UpdatedAt: sql.ColumnTime(stmt, 8),
	}
}

func load(db sql.Executor, query string, enc sql.Encoder) (*types.Account, error) {
	var account *types.Account
	_, err := db.Exec(query, enc, func(stmt *sql.Statement) bool {
		account = decode(stmt)
		return false
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, sql.ErrNotFound
	}
	return account, nil
}

// Add inserts a new account. Returns sql.ErrObjectExists if the id or the L1
// address is already known.
func Add(db sql.Executor, account *types.Account) error {
	if _, err := db.Exec(`insert into accounts (`+fields+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(account.ID))
			stmt.BindText(2, account.L1Address)
			sql.BindAmount(stmt, 3, account.Balance)
			sql.BindAmount(stmt, 4, account.Staked)
			sql.BindAmount(stmt, 5, account.Locked)
			stmt.BindInt64(6, int64(account.Nonce))
			if len(account.PublicKey) > 0 {
				stmt.BindBytes(7, account.PublicKey)
			} else {
				stmt.BindNull(7)
			}
			sql.BindTime(stmt, 8, account.CreatedAt)
			sql.BindTime(stmt, 9, account.UpdatedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert account %s: %w", account.ID, err)
	}
	return nil
}

// Get loads an account by id.
func Get(db sql.Executor, id types.AccountID) (*types.Account, error) {
	account, err := load(db, "select "+fields+" from accounts where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
		})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return account, nil
}

// GetByAddress loads an account by its L1 owner address.
func GetByAddress(db sql.Executor, l1Address string) (*types.Account, error) {
	account, err := load(db, "select "+fields+" from accounts where l1_address = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, l1Address)
		})
	if err != nil {
		return nil, fmt.Errorf("get account by address %s: %w", l1Address, err)
	}
	return account, nil
}

// Has the account in the database.
func Has(db sql.Executor, id types.AccountID) (bool, error) {
	rows, err := db.Exec("select 1 from accounts where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
		}, nil,
	)
	if err != nil {
		return false, fmt.Errorf("has account %s: %w", id, err)
	}
	return rows > 0, nil
}

// Update writes the mutable fields of an account.
func Update(db sql.Executor, account *types.Account) error {
	rows, err := db.Exec(`update accounts
		set balance = ?2, staked = ?3, locked = ?4, nonce = ?5, pubkey = ?6, updated_at = ?7
		where id = ?1 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(account.ID))
			sql.BindAmount(stmt, 2, account.Balance)
			sql.BindAmount(stmt, 3, account.Staked)
			sql.BindAmount(stmt, 4, account.Locked)
			stmt.BindInt64(5, int64(account.Nonce))
			if len(account.PublicKey) > 0 {
				stmt.BindBytes(6, account.PublicKey)
			} else {
				stmt.BindNull(6)
			}
			sql.BindTime(stmt, 7, account.UpdatedAt)
		}, nil)
	if err != nil {
		return fmt.Errorf("update account %s: %w", account.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("update account %s: %w", account.ID, sql.ErrNotFound)
	}
	return nil
}

// IterateStates calls fn with the committed state of every account ordered by id.
func IterateStates(db sql.Executor, fn func(types.AccountState) bool) error {
	_, err := db.Exec("select id, balance, staked, nonce from accounts order by id;", nil,
		func(stmt *sql.Statement) bool {
			return fn(types.AccountState{
				ID:      types.AccountID(stmt.ColumnText(0)),
				Balance: sql.ColumnAmount(stmt, 1),
				Staked:  sql.ColumnAmount(stmt, 2),
				Nonce:   uint64(stmt.ColumnInt64(3)),
			})
		})
	if err != nil {
		return fmt.Errorf("iterate account states: %w", err)
	}
	return nil
}

// States returns the state of every account ordered by id.
func States(db sql.Executor) ([]types.AccountState, error) {
	var states []types.AccountState
	err := IterateStates(db, func(s types.AccountState) bool {
		states = append(states, s)
		return true
	})
	return states, err
}

// Count returns the number of accounts.
func Count(db sql.Executor) (int, error) {
	var n int
	if _, err := db.Exec("select count(*) from accounts;", nil, func(stmt *sql.Statement) bool {
		n = stmt.ColumnInt(0)
		return false
	}); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
