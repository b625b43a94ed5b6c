package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Status enumerates journal lifecycle values.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPosted Status = "posted"
)

// Valid reports whether s is draft or posted.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPosted
}

// SourceReversal tags entries created by ReverseJournal.
const SourceReversal = "reversal"

// JournalEntry is the header of a ledger transaction.
type JournalEntry struct {
	ID          int64             `json:"id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	Reference   string            `json:"reference"`
	Description string            `json:"description"`
	EntryDate   time.Time         `json:"entry_date"`
	Status      Status            `json:"status"`
	Source      string            `json:"source,omitempty"`
	SourceID    string            `json:"source_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   *int64            `json:"created_by,omitempty"`
	ApprovedBy  *int64            `json:"approved_by,omitempty"`
	PostedAt    *time.Time        `json:"posted_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Lines       []JournalLine     `json:"lines,omitempty"`
}

// Totals sums the debit and credit sides of the attached lines.
func (e JournalEntry) Totals() (decimal.Decimal, decimal.Decimal) {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range e.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// JournalLine stores a debit or credit amount for an account.
type JournalLine struct {
	ID          int64             `json:"id"`
	JournalID   int64             `json:"journal_id"`
	TenantID    uuid.UUID         `json:"tenant_id"`
	AccountID   int64             `json:"account_id"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Account     *accounts.Account `json:"account,omitempty"`
}

// LineInput describes one line of a new entry.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	Metadata    map[string]string
}

// CreateInput groups the header and lines of a new entry.
type CreateInput struct {
	Reference   string
	Description string
	EntryDate   time.Time
	Status      Status
	Source      string
	SourceID    string
	Metadata    map[string]string
	CreatedBy   *int64
	Lines       []LineInput
}

// PostInput carries the approver of a draft being posted.
type PostInput struct {
	ApprovedBy *int64
}

// ReverseInput describes the offsetting entry. A zero EntryDate reuses the original date.
type ReverseInput struct {
	EntryDate   time.Time
	Description string
	CreatedBy   *int64
}

// ListFilter narrows List results. Zero values do not filter.
type ListFilter struct {
	Status Status
	Source string
	From   *time.Time
	To     *time.Time
	Page   shared.Page
}
