package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Accounts implements accounts.Repository.
type Accounts struct {
	s *Store
}

// Accounts returns the chart-of-accounts repository.
func (s *Store) Accounts() accounts.Repository {
	return &Accounts{s: s}
}

const accountColumns = `id, tenant_id, code, name, type, category, parent_id, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (accounts.Account, error) {
	var a accounts.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Category, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collectAccounts(rows *sql.Rows) ([]accounts.Account, error) {
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Accounts) Create(ctx context.Context, tenant shared.Tenant, in accounts.CreateInput) (accounts.Account, error) {
	var id int64
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		if in.ParentID != nil {
			if _, err := getAccount(ctx, tx, tenant, *in.ParentID); err != nil {
				return fmt.Errorf("%w: parent %d", acctshared.ErrAccountNotFound, *in.ParentID)
			}
		}
		now := r.s.now()
		res, err := tx.ExecContext(ctx, `INSERT INTO accounts (tenant_id, code, name, type, category, parent_id, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`, tenant.String(), in.Code, in.Name, string(in.Type), in.Category, in.ParentID, now, now)
		if err != nil {
			if isUniqueViolation(err, "accounts.") {
				return fmt.Errorf("%w: %s", acctshared.ErrDuplicateAccountCode, in.Code)
			}
			return fmt.Errorf("store/sqlite: insert account: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return accounts.Account{}, err
	}
	return r.Get(ctx, tenant, id)
}

func (r *Accounts) Get(ctx context.Context, tenant shared.Tenant, id int64) (accounts.Account, error) {
	return getAccount(ctx, r.s.db, tenant, id)
}

func getAccount(ctx context.Context, q execer, tenant shared.Tenant, id int64) (accounts.Account, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=? AND id=?`, tenant.String(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, acctshared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return account, nil
}

func (r *Accounts) FindByCode(ctx context.Context, tenant shared.Tenant, code string) (accounts.Account, error) {
	account, err := scanAccount(r.s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=? AND code=?`, tenant.String(), code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounts.Account{}, fmt.Errorf("%w: code %s", acctshared.ErrAccountNotFound, code)
		}
		return accounts.Account{}, err
	}
	return account, nil
}

func (r *Accounts) FindByCodes(ctx context.Context, tenant shared.Tenant, codes []string) ([]accounts.Account, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := []any{tenant.String()}
	for _, code := range codes {
		args = append(args, code)
	}
	rows, err := r.s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=? AND code IN (`+placeholders(len(codes))+`) ORDER BY code`, args...)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *Accounts) FindByIDs(ctx context.Context, tenant shared.Tenant, ids []int64) ([]accounts.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{tenant.String()}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := r.s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *Accounts) List(ctx context.Context, tenant shared.Tenant) ([]accounts.Account, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=? ORDER BY code`, tenant.String())
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *Accounts) CountByType(ctx context.Context, tenant shared.Tenant) (map[accounts.AccountType]int, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM accounts WHERE tenant_id=? GROUP BY type`, tenant.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[accounts.AccountType]int)
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[accounts.AccountType(t)] = n
	}
	return counts, rows.Err()
}

func (r *Accounts) Update(ctx context.Context, tenant shared.Tenant, id int64, in accounts.UpdateInput) (accounts.Account, error) {
	sets := make([]string, 0, 7)
	var args []any
	add := func(column string, value any) {
		sets = append(sets, column+"=?")
		args = append(args, value)
	}
	if in.Code != nil {
		add("code", *in.Code)
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Type != nil {
		add("type", string(*in.Type))
	}
	if in.Category != nil {
		add("category", *in.Category)
	}
	if in.ParentID != nil {
		add("parent_id", *in.ParentID)
	}
	if in.IsActive != nil {
		add("is_active", *in.IsActive)
	}
	if len(sets) == 0 {
		return r.Get(ctx, tenant, id)
	}
	add("updated_at", r.s.now())
	args = append(args, tenant.String(), id)
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET `+strings.Join(sets, ", ")+` WHERE tenant_id=? AND id=?`, args...)
		if err != nil {
			if isUniqueViolation(err, "accounts.") {
				return acctshared.ErrDuplicateAccountCode
			}
			return fmt.Errorf("store/sqlite: update account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return acctshared.ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		return accounts.Account{}, err
	}
	return r.Get(ctx, tenant, id)
}

func (r *Accounts) HasPostedLines(ctx context.Context, tenant shared.Tenant, id int64) (bool, error) {
	var exists bool
	err := r.s.db.QueryRowContext(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.journal_id
WHERE l.tenant_id=? AND l.account_id=? AND e.status='posted')`, tenant.String(), id).Scan(&exists)
	return exists, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
