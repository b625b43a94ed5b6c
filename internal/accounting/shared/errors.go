package shared

import (
	"fmt"

	"github.com/shopspring/decimal"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrTenantRequired indicates a ledger call without tenant scope.
	ErrTenantRequired = internalShared.ErrTenantRequired
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: accounting: journal lines must balance", internalShared.ErrValidation)
	// ErrInsufficientLines indicates less than two lines.
	ErrInsufficientLines = fmt.Errorf("%w: accounting: journal requires at least two lines", internalShared.ErrValidation)
	// ErrInvalidLine indicates a negative or two-sided line.
	ErrInvalidLine = fmt.Errorf("%w: accounting: invalid journal line", internalShared.ErrValidation)
	// ErrInvalidAccount indicates a line referencing an account outside the tenant.
	ErrInvalidAccount = fmt.Errorf("%w: accounting: account not found for tenant", internalShared.ErrValidation)
	// ErrInvalidAccountType indicates an unknown account type.
	ErrInvalidAccountType = fmt.Errorf("%w: accounting: invalid account type", internalShared.ErrValidation)
	// ErrInvalidAccountInput indicates missing account fields.
	ErrInvalidAccountInput = fmt.Errorf("%w: accounting: invalid account input", internalShared.ErrValidation)
	// ErrInvalidEntry indicates a malformed journal header.
	ErrInvalidEntry = fmt.Errorf("%w: accounting: invalid journal entry", internalShared.ErrValidation)
	// ErrInvalidReportQuery indicates an invalid fiscal year/period filter.
	ErrInvalidReportQuery = fmt.Errorf("%w: accounting: invalid report query", internalShared.ErrValidation)
	// ErrInvalidAmount indicates a non-positive producer amount.
	ErrInvalidAmount = fmt.Errorf("%w: accounting: amount must be positive", internalShared.ErrValidation)

	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = fmt.Errorf("%w: accounting: account not found", internalShared.ErrNotFound)
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("%w: accounting: journal entry not found", internalShared.ErrNotFound)

	// ErrDuplicateAccountCode indicates the code is already used within the tenant.
	ErrDuplicateAccountCode = fmt.Errorf("%w: accounting: account code already exists", internalShared.ErrConflict)
	// ErrAccountCodeLocked indicates a code change on an account referenced by posted lines.
	ErrAccountCodeLocked = fmt.Errorf("%w: accounting: account code is referenced by posted lines", internalShared.ErrConflict)
	// ErrSourceAlreadyLinked indicates idempotency conflict on (source, source id).
	ErrSourceAlreadyLinked = fmt.Errorf("%w: accounting: source already linked", internalShared.ErrConflict)
	// ErrAlreadyPosted indicates a second posting attempt.
	ErrAlreadyPosted = fmt.Errorf("%w: accounting: journal entry already posted", internalShared.ErrConflict)
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = fmt.Errorf("%w: accounting: invalid status transition", internalShared.ErrConflict)

	// ErrBalanceConflict indicates a lock or serialization failure on account_balances.
	ErrBalanceConflict = fmt.Errorf("%w: accounting: account balance update conflict", internalShared.ErrConcurrency)
)

// Round2 rounds to the currency unit.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
