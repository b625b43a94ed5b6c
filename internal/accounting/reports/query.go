package reports

import (
	"fmt"
	"strconv"

	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Query selects the balances a trial balance covers. FiscalYear 0 means every
// year; Period 0 means every period of the year.
type Query struct {
	FiscalYear int
	Period     int
}

// Validate rejects periods outside 1..12 and periods without a year.
func (q Query) Validate() error {
	if q.FiscalYear < 0 {
		return fmt.Errorf("%w: fiscal year must not be negative", acctshared.ErrInvalidReportQuery)
	}
	if q.Period < 0 || q.Period > 12 {
		return fmt.Errorf("%w: period must be between 1 and 12", acctshared.ErrInvalidReportQuery)
	}
	if q.Period != 0 && q.FiscalYear == 0 {
		return fmt.Errorf("%w: period requires a fiscal year", acctshared.ErrInvalidReportQuery)
	}
	return nil
}

func (q Query) cacheParts() []string {
	return []string{"tb", strconv.Itoa(q.FiscalYear), strconv.Itoa(q.Period)}
}
