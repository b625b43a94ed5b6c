package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
	AccountTypeCOGS      AccountType = "cogs"
	AccountTypeOther     AccountType = "other"
)

// AccountTypes lists the recognised types in display order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeIncome,
	AccountTypeExpense,
	AccountTypeCOGS,
	AccountTypeOther,
}

// Valid reports whether t is one of the recognised types.
func (t AccountType) Valid() bool {
	for _, known := range AccountTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAccountType normalises case and whitespace.
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", shared.ErrInvalidAccountType, raw)
	}
	return t, nil
}

// Account models a chart of accounts node. ParentID is informational only.
type Account struct {
	ID        int64       `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	Category  string      `json:"category"`
	ParentID  *int64      `json:"parent_id,omitempty"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// CreateInput describes a new account.
type CreateInput struct {
	Code     string
	Name     string
	Type     AccountType
	Category string
	ParentID *int64
}

// UpdateInput is a partial patch; nil fields are left untouched.
type UpdateInput struct {
	Code     *string
	Name     *string
	Type     *AccountType
	Category *string
	ParentID *int64
	IsActive *bool
}

// IsEmpty reports whether the patch changes nothing.
func (in UpdateInput) IsEmpty() bool {
	return in.Code == nil && in.Name == nil && in.Type == nil && in.Category == nil && in.ParentID == nil && in.IsActive == nil
}

// TypeCount is one row of the account summary.
type TypeCount struct {
	Type  AccountType `json:"type"`
	Count int         `json:"count"`
}

// Summary counts accounts grouped by type.
type Summary struct {
	Total  int         `json:"total"`
	ByType []TypeCount `json:"by_type"`
}
