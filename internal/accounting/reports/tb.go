package reports

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountBalance is one materialized balance row: an account in a fiscal period.
type AccountBalance struct {
	AccountID  int64                `json:"account_id"`
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Type       accounts.AccountType `json:"type"`
	FiscalYear int                  `json:"fiscal_year"`
	Period     int                  `json:"period"`
	Debit      decimal.Decimal      `json:"debit"`
	Credit     decimal.Decimal      `json:"credit"`
}

// Closing is debit minus credit.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Debit.Sub(a.Credit)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceRow is one account balance row of the report.
type TrialBalanceRow struct {
	AccountID  int64                `json:"account_id"`
	Code       string               `json:"code"`
	Name       string               `json:"name"`
	Type       accounts.AccountType `json:"type"`
	FiscalYear int                  `json:"fiscal_year"`
	Period     int                  `json:"period"`
	Debit      decimal.Decimal      `json:"debit"`
	Credit     decimal.Decimal      `json:"credit"`
	Balance    decimal.Decimal      `json:"balance"`
}

// TrialBalanceAccount is an account's total across the queried periods.
type TrialBalanceAccount struct {
	AccountID int64                `json:"account_id"`
	Code      string               `json:"code"`
	Name      string               `json:"name"`
	Type      accounts.AccountType `json:"type"`
	Debit     decimal.Decimal      `json:"debit"`
	Credit    decimal.Decimal      `json:"credit"`
	Balance   decimal.Decimal      `json:"balance"`
}

// TrialBalanceGroup aggregates accounts sharing a code prefix.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
	Balance  decimal.Decimal       `json:"balance"`
}

// TrialBalance is the report returned to callers. Rows holds every balance
// row in range; Groups folds them per account under a code prefix.
type TrialBalance struct {
	TenantID    uuid.UUID           `json:"tenant_id"`
	FiscalYear  int                 `json:"fiscal_year,omitempty"`
	Period      int                 `json:"period,omitempty"`
	Rows        []TrialBalanceRow   `json:"rows"`
	Groups      []TrialBalanceGroup `json:"groups"`
	TotalDebit  decimal.Decimal     `json:"total_debit"`
	TotalCredit decimal.Decimal     `json:"total_credit"`
	Balanced    bool                `json:"balanced"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// BuildTrialBalance converts account balances into trial balance rows and
// grouped per-account totals. Balanced compares the totals at currency precision.
func BuildTrialBalance(balances []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	perAccount := make(map[string]*TrialBalanceAccount)
	var order []string
	result := TrialBalance{Rows: make([]TrialBalanceRow, 0, len(balances))}
	for _, acc := range balances {
		row := TrialBalanceRow{
			AccountID:  acc.AccountID,
			Code:       acc.Code,
			Name:       acc.Name,
			Type:       acc.Type,
			FiscalYear: acc.FiscalYear,
			Period:     acc.Period,
			Debit:      acc.Debit,
			Credit:     acc.Credit,
			Balance:    acc.Closing(),
		}
		result.Rows = append(result.Rows, row)
		result.TotalDebit = result.TotalDebit.Add(row.Debit)
		result.TotalCredit = result.TotalCredit.Add(row.Credit)

		total, ok := perAccount[acc.Code]
		if !ok {
			total = &TrialBalanceAccount{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Type: acc.Type}
			perAccount[acc.Code] = total
			order = append(order, acc.Code)
		}
		total.Debit = total.Debit.Add(row.Debit)
		total.Credit = total.Credit.Add(row.Credit)
		total.Balance = total.Debit.Sub(total.Credit)
	}

	keys := make([]string, 0)
	for _, code := range order {
		total := *perAccount[code]
		key := AccountBalance{Code: total.Code}.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, total)
		grp.Debit = grp.Debit.Add(total.Debit)
		grp.Credit = grp.Credit.Add(total.Credit)
		grp.Balance = grp.Balance.Add(total.Balance)
	}
	sort.Strings(keys)
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
	}
	sort.Slice(result.Rows, func(i, j int) bool {
		a, b := result.Rows[i], result.Rows[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.FiscalYear != b.FiscalYear {
			return a.FiscalYear < b.FiscalYear
		}
		return a.Period < b.Period
	})
	result.Balanced = acctshared.Round2(result.TotalDebit).Equal(acctshared.Round2(result.TotalCredit))
	return result
}
