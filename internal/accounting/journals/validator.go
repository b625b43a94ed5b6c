package journals

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountLookup resolves account ids within a tenant.
type AccountLookup interface {
	FindByIDs(ctx context.Context, tenant shared.Tenant, ids []int64) (map[int64]accounts.Account, error)
}

// Result is the outcome of a successful validation.
type Result struct {
	Lines       []LineInput
	Accounts    map[int64]accounts.Account
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Validator checks journal lines before anything is written.
type Validator struct {
	accounts AccountLookup
}

func NewValidator(accounts AccountLookup) *Validator {
	return &Validator{accounts: accounts}
}

// Validate runs the structural and balance checks, then verifies every
// referenced account belongs to the tenant.
func (v *Validator) Validate(ctx context.Context, tenant shared.Tenant, lines []LineInput) (Result, error) {
	if err := tenant.Require(); err != nil {
		return Result{}, err
	}
	res, err := CheckLines(lines)
	if err != nil {
		return Result{}, err
	}
	ids := make([]int64, 0, len(res.Lines))
	for _, line := range res.Lines {
		ids = append(ids, line.AccountID)
	}
	found, err := v.accounts.FindByIDs(ctx, tenant, ids)
	if err != nil {
		return Result{}, err
	}
	var missing []int64
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		return Result{}, fmt.Errorf("%w: %v", acctshared.ErrInvalidAccount, missing)
	}
	res.Accounts = found
	return res, nil
}

// CheckLines enforces the line count, line shape, and balance rules without
// touching storage. Totals balance when they agree at currency precision;
// line amounts are kept as given.
func CheckLines(lines []LineInput) (Result, error) {
	if len(lines) < 2 {
		return Result{}, acctshared.ErrInsufficientLines
	}
	normalized := make([]LineInput, len(lines))
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range lines {
		if line.AccountID <= 0 {
			return Result{}, fmt.Errorf("%w: line %d missing account", acctshared.ErrInvalidLine, idx+1)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return Result{}, fmt.Errorf("%w: line %d negative amount", acctshared.ErrInvalidLine, idx+1)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return Result{}, fmt.Errorf("%w: line %d cannot be both debit and credit", acctshared.ErrInvalidLine, idx+1)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
		normalized[idx] = line
	}
	if !acctshared.Round2(debit).Equal(acctshared.Round2(credit)) {
		return Result{}, fmt.Errorf("%w: debit %s credit %s", acctshared.ErrUnbalanced, debit.StringFixed(2), credit.StringFixed(2))
	}
	return Result{Lines: normalized, TotalDebit: debit, TotalCredit: credit}, nil
}
