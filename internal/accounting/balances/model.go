// Package balances maintains per-account, per-fiscal-period running totals.
package balances

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountBalance is the materialized total for one account and fiscal period.
type AccountBalance struct {
	TenantID   uuid.UUID       `json:"tenant_id"`
	AccountID  int64           `json:"account_id"`
	FiscalYear int             `json:"fiscal_year"`
	Period     int             `json:"period"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Balance    decimal.Decimal `json:"balance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Key identifies a balance row within a tenant.
type Key struct {
	AccountID  int64
	FiscalYear int
	Period     int
}

// Less orders keys by account, then year, then period.
func (k Key) Less(o Key) bool {
	if k.AccountID != o.AccountID {
		return k.AccountID < o.AccountID
	}
	if k.FiscalYear != o.FiscalYear {
		return k.FiscalYear < o.FiscalYear
	}
	return k.Period < o.Period
}

// PostingLine is the subset of a posted journal line the aggregator needs.
type PostingLine struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Store is implemented by the transactional repositories of each backend.
type Store interface {
	// PostingLines returns the entry date and lines of a posted entry.
	PostingLines(ctx context.Context, tenant shared.Tenant, entryID int64) (time.Time, []PostingLine, error)
	// AddToBalance creates the row when absent and increments its totals under a row lock.
	AddToBalance(ctx context.Context, tenant shared.Tenant, key Key, debit, credit decimal.Decimal) error
}

// PeriodOf maps an entry date to its fiscal year and period (calendar month).
func PeriodOf(date time.Time) (int, int) {
	return date.Year(), int(date.Month())
}
