package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists the tenant-scoped chart of accounts.
type Repository interface {
	Create(ctx context.Context, tenant internalShared.Tenant, in CreateInput) (Account, error)
	Get(ctx context.Context, tenant internalShared.Tenant, id int64) (Account, error)
	FindByCode(ctx context.Context, tenant internalShared.Tenant, code string) (Account, error)
	FindByCodes(ctx context.Context, tenant internalShared.Tenant, codes []string) ([]Account, error)
	FindByIDs(ctx context.Context, tenant internalShared.Tenant, ids []int64) ([]Account, error)
	List(ctx context.Context, tenant internalShared.Tenant) ([]Account, error)
	CountByType(ctx context.Context, tenant internalShared.Tenant) (map[AccountType]int, error)
	Update(ctx context.Context, tenant internalShared.Tenant, id int64, in UpdateInput) (Account, error)
	HasPostedLines(ctx context.Context, tenant internalShared.Tenant, id int64) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres implementation.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const accountColumns = `id, tenant_id, code, name, type, category, parent_id, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Category, &a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Create(ctx context.Context, tenant internalShared.Tenant, in CreateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, category, parent_id)
SELECT $1, $2, $3, $4, $5, $6
WHERE $6::bigint IS NULL OR EXISTS (SELECT 1 FROM accounts WHERE id = $6 AND tenant_id = $1)
RETURNING `+accountColumns, tenant.ID(), in.Code, in.Name, in.Type, in.Category, in.ParentID)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: parent %d", shared.ErrAccountNotFound, *in.ParentID)
		}
		if db.IsUniqueViolation(err, "uq_accounts_tenant_code") {
			return Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateAccountCode, in.Code)
		}
		return Account{}, fmt.Errorf("accounting/accounts: insert: %w", err)
	}
	return account, nil
}

func (r *repository) Get(ctx context.Context, tenant internalShared.Tenant, id int64) (Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenant.ID(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) FindByCode(ctx context.Context, tenant internalShared.Tenant, code string) (Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenant.ID(), code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: code %s", shared.ErrAccountNotFound, code)
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) FindByCodes(ctx context.Context, tenant internalShared.Tenant, codes []string) ([]Account, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code = ANY($2) ORDER BY code`, tenant.ID(), codes)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) FindByIDs(ctx context.Context, tenant internalShared.Tenant, ids []int64) ([]Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY id`, tenant.ID(), ids)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) List(ctx context.Context, tenant internalShared.Tenant) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenant.ID())
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) CountByType(ctx context.Context, tenant internalShared.Tenant) (map[AccountType]int, error) {
	rows, err := r.db.Query(ctx, `SELECT type, COUNT(*) FROM accounts WHERE tenant_id=$1 GROUP BY type`, tenant.ID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[AccountType]int)
	for rows.Next() {
		var t AccountType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (r *repository) Update(ctx context.Context, tenant internalShared.Tenant, id int64, in UpdateInput) (Account, error) {
	sets := make([]string, 0, 6)
	args := []any{tenant.ID(), id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if in.Code != nil {
		add("code", *in.Code)
	}
	if in.Name != nil {
		add("name", *in.Name)
	}
	if in.Type != nil {
		add("type", *in.Type)
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
	query := `UPDATE accounts SET ` + strings.Join(sets, ", ") + `, updated_at=NOW() WHERE tenant_id=$1 AND id=$2 RETURNING ` + accountColumns
	account, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		if db.IsUniqueViolation(err, "uq_accounts_tenant_code") {
			return Account{}, shared.ErrDuplicateAccountCode
		}
		return Account{}, fmt.Errorf("accounting/accounts: update: %w", err)
	}
	return account, nil
}

func (r *repository) HasPostedLines(ctx context.Context, tenant internalShared.Tenant, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id = l.journal_id
WHERE l.tenant_id=$1 AND l.account_id=$2 AND e.status='posted')`, tenant.ID(), id).Scan(&exists)
	return exists, err
}
