package sqlite

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Reports implements reports.Repository. Amounts are stored as text, so sums
// are computed with decimal arithmetic instead of SQL SUM.
type Reports struct {
	s *Store
}

// Reports returns the read-side repository.
func (s *Store) Reports() reports.Repository {
	return &Reports{s: s}
}

func (r *Reports) TrialBalance(ctx context.Context, tenant shared.Tenant, q reports.Query) ([]reports.AccountBalance, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT a.id, a.code, a.name, a.type, b.fiscal_year, b.period, b.debit, b.credit
FROM account_balances b
JOIN accounts a ON a.id = b.account_id AND a.tenant_id = b.tenant_id
WHERE b.tenant_id = ?
  AND (? = 0 OR b.fiscal_year = ?)
  AND (? = 0 OR b.period = ?)
ORDER BY a.code, b.fiscal_year, b.period`, tenant.String(), q.FiscalYear, q.FiscalYear, q.Period, q.Period)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: trial balance: %w", err)
	}
	defer rows.Close()
	var out []reports.AccountBalance
	for rows.Next() {
		var (
			b   reports.AccountBalance
			typ string
		)
		if err := rows.Scan(&b.AccountID, &b.Code, &b.Name, &typ, &b.FiscalYear, &b.Period, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		b.Type = accounts.AccountType(typ)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Reports) MaterializedBalances(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT tenant_id, account_id, fiscal_year, period, debit, credit, balance, created_at, updated_at
FROM account_balances WHERE tenant_id = ? ORDER BY account_id, fiscal_year, period`, tenant.String())
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: balances: %w", err)
	}
	defer rows.Close()
	var out []balances.AccountBalance
	for rows.Next() {
		var b balances.AccountBalance
		if err := rows.Scan(&b.TenantID, &b.AccountID, &b.FiscalYear, &b.Period, &b.Debit, &b.Credit, &b.Balance, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Reports) PostedLineTotals(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT l.account_id, e.entry_date, l.debit, l.credit
FROM journal_lines l
JOIN journal_entries e ON e.id = l.journal_id AND e.tenant_id = l.tenant_id
WHERE l.tenant_id = ? AND e.status = 'posted'`, tenant.String())
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: posted totals: %w", err)
	}
	defer rows.Close()
	totals := make(map[balances.Key]*balances.AccountBalance)
	for rows.Next() {
		var (
			accountID     int64
			date          time.Time
			debit, credit decimal.Decimal
		)
		if err := rows.Scan(&accountID, &date, &debit, &credit); err != nil {
			return nil, err
		}
		year, period := balances.PeriodOf(date)
		key := balances.Key{AccountID: accountID, FiscalYear: year, Period: period}
		b, ok := totals[key]
		if !ok {
			b = &balances.AccountBalance{TenantID: tenant.ID(), AccountID: accountID, FiscalYear: year, Period: period}
			totals[key] = b
		}
		b.Debit = b.Debit.Add(debit)
		b.Credit = b.Credit.Add(credit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	keys := make([]balances.Key, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	out := make([]balances.AccountBalance, 0, len(keys))
	for _, k := range keys {
		b := totals[k]
		b.Balance = b.Debit.Sub(b.Credit)
		out = append(out, *b)
	}
	return out, nil
}

func (r *Reports) Tenants(ctx context.Context) ([]shared.Tenant, error) {
	rows, err := r.s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM accounts ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: tenants: %w", err)
	}
	defer rows.Close()
	var out []shared.Tenant
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenant, err := shared.NewTenant(id)
		if err != nil {
			return nil, err
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}
