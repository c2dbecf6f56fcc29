package validators

import (
	"fmt"
	"time"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

const fields = `id, pubkey, payout_address, account_id, staked, rewards_accumulated,
	rewards_claimed, status, last_active, blocks_validated, created_at`

func decode(stmt *sql.Statement) *types.Validator {
	return &types.Validator{
		ID:                 stmt.ColumnText(0),
		PublicKey:          sql.ColumnBlob(stmt, 1),
		PayoutAddress:      stmt.ColumnText(2),
		AccountID:          types.AccountID(stmt.ColumnText(3)),
		Staked:             sql.ColumnAmount(stmt, 4),
		RewardsAccumulated: sql.ColumnAmount(stmt, 5),
		RewardsClaimed:     sql.ColumnAmount(stmt, 6),
		Status:             types.ValidatorStatus(stmt.ColumnText(7)),
		LastActive:         sql.ColumnTime(stmt, 8),
		BlocksValidated:    uint64(stmt.ColumnInt64(9)),
		CreatedAt:          sql.ColumnTime(stmt, 10),
	}
}

func list(db sql.Executor, query string, enc sql.Encoder) ([]*types.Validator, error) {
	var rst []*types.Validator
	if _, err := db.Exec(query, enc, func(stmt *sql.Statement) bool {
		rst = append(rst, decode(stmt))
		return true
	}); err != nil {
		return nil, err
	}
	return rst, nil
}

// Add registers a validator.
func Add(db sql.Executor, v *types.Validator) error {
	if _, err := db.Exec(`insert into validators (`+fields+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, v.ID)
			stmt.BindBytes(2, v.PublicKey)
			stmt.BindText(3, v.PayoutAddress)
			stmt.BindText(4, string(v.AccountID))
			sql.BindAmount(stmt, 5, v.Staked)
			sql.BindAmount(stmt, 6, v.RewardsAccumulated)
			sql.BindAmount(stmt, 7, v.RewardsClaimed)
			stmt.BindText(8, string(v.Status))
			sql.BindTime(stmt, 9, v.LastActive)
			stmt.BindInt64(10, int64(v.BlocksValidated))
			sql.BindTime(stmt, 11, v.CreatedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert validator %s: %w", v.ID, err)
	}
	return nil
}

// Update writes the mutable fields of a validator. Validators are never deleted.
func Update(db sql.Executor, v *types.Validator) error {
	rows, err := db.Exec(`update validators
		set staked = ?2, rewards_accumulated = ?3, rewards_claimed = ?4, status = ?5,
		last_active = ?6, blocks_validated = ?7
		where id = ?1 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, v.ID)
			sql.BindAmount(stmt, 2, v.Staked)
			sql.BindAmount(stmt, 3, v.RewardsAccumulated)
			sql.BindAmount(stmt, 4, v.RewardsClaimed)
			stmt.BindText(5, string(v.Status))
			sql.BindTime(stmt, 6, v.LastActive)
			stmt.BindInt64(7, int64(v.BlocksValidated))
		}, nil)
	if err != nil {
		return fmt.Errorf("update validator %s: %w", v.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("update validator %s: %w", v.ID, sql.ErrNotFound)
	}
	return nil
}

// Get loads a validator by id.
func Get(db sql.Executor, id string) (*types.Validator, error) {
	rst, err := list(db, "select "+fields+" from validators where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, id)
		})
	if err != nil {
		return nil, fmt.Errorf("get validator %s: %w", id, err)
	}
	if len(rst) == 0 {
		return nil, fmt.Errorf("get validator %s: %w", id, sql.ErrNotFound)
	}
	return rst[0], nil
}

// All returns every validator ordered by id.
func All(db sql.Executor) ([]*types.Validator, error) {
	rst, err := list(db, "select "+fields+" from validators order by id;", nil)
	if err != nil {
		return nil, fmt.Errorf("all validators: %w", err)
	}
	return rst, nil
}

// Active returns validators with active status ordered by id.
func Active(db sql.Executor) ([]*types.Validator, error) {
	rst, err := list(db, "select "+fields+" from validators where status = ?1 order by id;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(types.ValidatorActive))
		})
	if err != nil {
		return nil, fmt.Errorf("active validators: %w", err)
	}
	return rst, nil
}

// Touch bumps last-active and blocks-validated for an active validator.
func Touch(db sql.Executor, id string, now time.Time) error {
	rows, err := db.Exec(`update validators set last_active = ?2, blocks_validated = blocks_validated + 1
		where id = ?1 and status = ?3 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, id)
			sql.BindTime(stmt, 2, now)
			stmt.BindText(3, string(types.ValidatorActive))
		}, nil)
	if err != nil {
		return fmt.Errorf("touch validator %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("touch validator %s: %w", id, sql.ErrNotFound)
	}
	return nil
}
