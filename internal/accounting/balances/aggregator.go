package balances

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Aggregator folds posted journal lines into account balances.
type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

type delta struct {
	debit  decimal.Decimal
	credit decimal.Decimal
}

// ApplyPosting adds the lines of a posted entry to the balances of its fiscal period.
// It must run inside the transaction that posted the entry.
func (a *Aggregator) ApplyPosting(ctx context.Context, store Store, tenant shared.Tenant, entryID int64) error {
	if err := tenant.Require(); err != nil {
		return err
	}
	date, lines, err := store.PostingLines(ctx, tenant, entryID)
	if err != nil {
		return err
	}
	year, period := PeriodOf(date)
	keys, deltas := fold(lines, year, period)
	for _, key := range keys {
		d := deltas[key]
		if err := store.AddToBalance(ctx, tenant, key, d.debit, d.credit); err != nil {
			return fmt.Errorf("accounting/balances: account %d %04d-%02d: %w", key.AccountID, key.FiscalYear, key.Period, err)
		}
	}
	return nil
}

// fold sums lines per balance key and returns the keys in lock order.
func fold(lines []PostingLine, year, period int) ([]Key, map[Key]delta) {
	deltas := make(map[Key]delta, len(lines))
	for _, line := range lines {
		key := Key{AccountID: line.AccountID, FiscalYear: year, Period: period}
		d := deltas[key]
		d.debit = d.debit.Add(line.Debit)
		d.credit = d.credit.Add(line.Credit)
		deltas[key] = d
	}
	keys := make([]Key, 0, len(deltas))
	for key := range deltas {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, deltas
}
