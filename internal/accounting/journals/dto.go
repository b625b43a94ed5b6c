package journals

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

const dateLayout = "2006-01-02"

type lineRequest struct {
	AccountID   int64             `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal   `json:"debit"`
	Credit      decimal.Decimal   `json:"credit"`
	Description string            `json:"description" validate:"max=255"`
	Metadata    map[string]string `json:"metadata"`
}

type createJournalRequest struct {
	EntryDate   string            `json:"entry_date" validate:"required"`
	Description string            `json:"description" validate:"max=500"`
	Reference   string            `json:"reference" validate:"max=64"`
	Status      string            `json:"status" validate:"required,oneof=draft posted"`
	Source      string            `json:"source" validate:"max=64"`
	SourceID    string            `json:"source_id" validate:"max=128"`
	Metadata    map[string]string `json:"metadata"`
	CreatedBy   *int64            `json:"created_by" validate:"omitempty,gt=0"`
	Lines       []lineRequest     `json:"lines" validate:"dive"`
}

func (req createJournalRequest) toInput() (CreateInput, error) {
	date, err := parseDate(req.EntryDate)
	if err != nil {
		return CreateInput{}, err
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, LineInput{
			AccountID:   l.AccountID,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
			Metadata:    l.Metadata,
		})
	}
	return CreateInput{
		Reference:   req.Reference,
		Description: req.Description,
		EntryDate:   date,
		Status:      Status(req.Status),
		Source:      req.Source,
		SourceID:    req.SourceID,
		Metadata:    req.Metadata,
		CreatedBy:   req.CreatedBy,
		Lines:       lines,
	}, nil
}

type postJournalRequest struct {
	ApprovedBy *int64 `json:"approved_by" validate:"omitempty,gt=0"`
}

type reverseJournalRequest struct {
	EntryDate   string `json:"entry_date"`
	Description string `json:"description" validate:"max=500"`
	CreatedBy   *int64 `json:"created_by" validate:"omitempty,gt=0"`
}

func (req reverseJournalRequest) toInput() (ReverseInput, error) {
	in := ReverseInput{Description: req.Description, CreatedBy: req.CreatedBy}
	if req.EntryDate != "" {
		date, err := parseDate(req.EntryDate)
		if err != nil {
			return ReverseInput{}, err
		}
		in.EntryDate = date
	}
	return in, nil
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: entry_date must be YYYY-MM-DD", acctshared.ErrInvalidEntry)
	}
	return date, nil
}
