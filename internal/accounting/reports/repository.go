package reports

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository reads aggregated ledger data. It never writes.
type Repository interface {
	TrialBalance(ctx context.Context, tenant shared.Tenant, q Query) ([]AccountBalance, error)
	MaterializedBalances(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error)
	PostedLineTotals(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error)
	Tenants(ctx context.Context) ([]shared.Tenant, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres implementation.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) TrialBalance(ctx context.Context, tenant shared.Tenant, q Query) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.code, a.name, a.type, b.fiscal_year, b.period, b.debit, b.credit
FROM account_balances b
JOIN accounts a ON a.id = b.account_id AND a.tenant_id = b.tenant_id
WHERE b.tenant_id = $1
  AND ($2::int = 0 OR b.fiscal_year = $2)
  AND ($3::int = 0 OR b.period = $3)
ORDER BY a.code, b.fiscal_year, b.period`, tenant.ID(), q.FiscalYear, q.Period)
	if err != nil {
		return nil, fmt.Errorf("accounting/reports: trial balance: %w", err)
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &b.Type, &b.FiscalYear, &b.Period, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) MaterializedBalances(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT tenant_id, account_id, fiscal_year, period, debit, credit, balance, created_at, updated_at
FROM account_balances WHERE tenant_id = $1 ORDER BY account_id, fiscal_year, period`, tenant.ID())
	if err != nil {
		return nil, fmt.Errorf("accounting/reports: balances: %w", err)
	}
	return collectBalances(rows, func(b *balances.AccountBalance) []any {
		return []any{&b.TenantID, &b.AccountID, &b.FiscalYear, &b.Period, &b.Debit, &b.Credit, &b.Balance, &b.CreatedAt, &b.UpdatedAt}
	})
}

func (r *repository) PostedLineTotals(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT l.tenant_id, l.account_id,
       EXTRACT(YEAR FROM e.entry_date)::int AS fiscal_year,
       EXTRACT(MONTH FROM e.entry_date)::int AS period,
       SUM(l.debit), SUM(l.credit), SUM(l.debit) - SUM(l.credit)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_id AND e.tenant_id = l.tenant_id
WHERE l.tenant_id = $1 AND e.status = 'posted'
GROUP BY l.tenant_id, l.account_id, fiscal_year, period
ORDER BY l.account_id, fiscal_year, period`, tenant.ID())
	if err != nil {
		return nil, fmt.Errorf("accounting/reports: posted totals: %w", err)
	}
	return collectBalances(rows, func(b *balances.AccountBalance) []any {
		return []any{&b.TenantID, &b.AccountID, &b.FiscalYear, &b.Period, &b.Debit, &b.Credit, &b.Balance}
	})
}

func (r *repository) Tenants(ctx context.Context) ([]shared.Tenant, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("accounting/reports: tenants: %w", err)
	}
	defer rows.Close()
	var out []shared.Tenant
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		tenant, err := shared.ParseTenant(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

func collectBalances(rows pgx.Rows, dest func(*balances.AccountBalance) []any) ([]balances.AccountBalance, error) {
	defer rows.Close()
	var out []balances.AccountBalance
	for rows.Next() {
		var b balances.AccountBalance
		if err := rows.Scan(dest(&b)...); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
