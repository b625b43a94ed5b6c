package reports

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
)

// Drift is a balance row whose materialized totals disagree with its posted lines.
type Drift struct {
	Key            balances.Key    `json:"key"`
	ExpectedDebit  decimal.Decimal `json:"expected_debit"`
	ExpectedCredit decimal.Decimal `json:"expected_credit"`
	ActualDebit    decimal.Decimal `json:"actual_debit"`
	ActualCredit   decimal.Decimal `json:"actual_credit"`
}

// IntegrityReport summarises one tenant's ledger health.
type IntegrityReport struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	Drifts      []Drift         `json:"drifts,omitempty"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balanced    bool            `json:"balanced"`
}

// OK reports a balanced ledger without drift.
func (r IntegrityReport) OK() bool {
	return r.Balanced && len(r.Drifts) == 0
}

// CompareBalances returns the keys where materialized and recomputed totals differ.
func CompareBalances(materialized, recomputed []balances.AccountBalance) []Drift {
	type pair struct {
		actual, expected balances.AccountBalance
	}
	keyOf := func(b balances.AccountBalance) balances.Key {
		return balances.Key{AccountID: b.AccountID, FiscalYear: b.FiscalYear, Period: b.Period}
	}
	merged := make(map[balances.Key]*pair)
	get := func(k balances.Key) *pair {
		p, ok := merged[k]
		if !ok {
			p = &pair{}
			merged[k] = p
		}
		return p
	}
	for _, b := range materialized {
		get(keyOf(b)).actual = b
	}
	for _, b := range recomputed {
		get(keyOf(b)).expected = b
	}
	var drifts []Drift
	for key, p := range merged {
		if p.actual.Debit.Equal(p.expected.Debit) && p.actual.Credit.Equal(p.expected.Credit) {
			continue
		}
		drifts = append(drifts, Drift{
			Key:            key,
			ExpectedDebit:  p.expected.Debit,
			ExpectedCredit: p.expected.Credit,
			ActualDebit:    p.actual.Debit,
			ActualCredit:   p.actual.Credit,
		})
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Key.Less(drifts[j].Key) })
	return drifts
}
