// Package integration turns domain events from other modules into balanced
// ledger postings.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger exposes the journal operations producers need.
type Ledger interface {
	CreateJournalEntry(ctx context.Context, tenant shared.Tenant, in journals.CreateInput) (journals.JournalEntry, error)
	FindBySource(ctx context.Context, tenant shared.Tenant, source, sourceID string) (journals.JournalEntry, error)
}

// AccountResolver resolves configured account codes.
type AccountResolver interface {
	FindByCodes(ctx context.Context, tenant shared.Tenant, codes []string) (map[string]accounts.Account, error)
}

// Producers assembles ledger entries for invoice payments and payroll runs.
type Producers struct {
	ledger     Ledger
	accounts   AccountResolver
	codes      PostingAccounts
	logger     *slog.Logger
	initial    time.Duration
	maxElapsed time.Duration
}

// NewProducers constructs the posting producers.
func NewProducers(ledger Ledger, resolver AccountResolver, codes PostingAccounts, logger *slog.Logger) *Producers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producers{
		ledger:     ledger,
		accounts:   resolver,
		codes:      codes,
		logger:     logger,
		initial:    100 * time.Millisecond,
		maxElapsed: 5 * time.Second,
	}
}

// WithRetry bounds the backoff used for balance conflicts.
func (p *Producers) WithRetry(initial, maxElapsed time.Duration) {
	if initial > 0 {
		p.initial = initial
	}
	if maxElapsed > 0 {
		p.maxElapsed = maxElapsed
	}
}

// PostInvoicePayment debits the deposit account and credits receivables.
func (p *Producers) PostInvoicePayment(ctx context.Context, tenant shared.Tenant, evt InvoicePaymentReceived) (journals.JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return journals.JournalEntry{}, err
	}
	paymentID := strings.TrimSpace(evt.PaymentID)
	if paymentID == "" {
		return journals.JournalEntry{}, fmt.Errorf("%w: payment id required", acctshared.ErrInvalidEntry)
	}
	if evt.PaidAt.IsZero() {
		return journals.JournalEntry{}, fmt.Errorf("%w: payment date required", acctshared.ErrInvalidEntry)
	}
	amount := acctshared.Round2(evt.Amount)
	if !amount.IsPositive() {
		return journals.JournalEntry{}, acctshared.ErrInvalidAmount
	}
	if err := requireCodes(p.codes.invoiceRoles(evt.Method)); err != nil {
		return journals.JournalEntry{}, err
	}
	depositCode := p.codes.depositCode(evt.Method)
	resolved, err := p.accounts.FindByCodes(ctx, tenant, []string{depositCode, p.codes.AccountsReceivable})
	if err != nil {
		return journals.JournalEntry{}, err
	}
	reference := evt.Reference
	if reference == "" {
		reference = "PAY-" + paymentID
	}
	in := journals.CreateInput{
		Reference:   reference,
		Description: fmt.Sprintf("Payment %s for invoice %s", paymentID, evt.InvoiceID),
		EntryDate:   evt.PaidAt,
		Status:      journals.StatusPosted,
		Source:      SourceInvoicePayment,
		SourceID:    paymentID,
		Metadata: map[string]string{
			"invoice_id": evt.InvoiceID,
			"method":     evt.Method,
		},
		CreatedBy: evt.CreatedBy,
		Lines: []journals.LineInput{
			{AccountID: resolved[depositCode].ID, Debit: amount, Description: "Payment received"},
			{AccountID: resolved[p.codes.AccountsReceivable].ID, Credit: amount, Description: "Invoice " + evt.InvoiceID},
		},
	}
	return p.post(ctx, tenant, in)
}

// PostPayrollRun books a completed run as a five-line entry.
func (p *Producers) PostPayrollRun(ctx context.Context, tenant shared.Tenant, evt PayrollRunCompleted) (journals.JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return journals.JournalEntry{}, err
	}
	runID := strings.TrimSpace(evt.RunID)
	if runID == "" {
		return journals.JournalEntry{}, fmt.Errorf("%w: payroll run id required", acctshared.ErrInvalidEntry)
	}
	if evt.PayDate.IsZero() {
		return journals.JournalEntry{}, fmt.Errorf("%w: pay date required", acctshared.ErrInvalidEntry)
	}
	if len(evt.Entries) == 0 {
		return journals.JournalEntry{}, fmt.Errorf("%w: payroll run has no entries", acctshared.ErrInvalidEntry)
	}
	totals, err := sumPayroll(evt.Entries)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	if !totals.Gross.IsPositive() {
		return journals.JournalEntry{}, fmt.Errorf("%w: payroll gross must be positive", acctshared.ErrInvalidAmount)
	}
	if totals.NetPay().IsNegative() {
		return journals.JournalEntry{}, fmt.Errorf("%w: withholding exceeds gross pay", acctshared.ErrInvalidAmount)
	}
	if err := requireCodes(p.codes.payrollRoles()); err != nil {
		return journals.JournalEntry{}, err
	}
	resolved, err := p.accounts.FindByCodes(ctx, tenant, p.codes.payrollCodes())
	if err != nil {
		return journals.JournalEntry{}, err
	}
	in := journals.CreateInput{
		Reference:   "PAYROLL-" + runID,
		Description: fmt.Sprintf("Payroll run %s", runID),
		EntryDate:   evt.PayDate,
		Status:      journals.StatusPosted,
		Source:      SourcePayroll,
		SourceID:    runID,
		Metadata:    map[string]string{"employees": strconv.Itoa(len(evt.Entries))},
		CreatedBy:   evt.CreatedBy,
		Lines: []journals.LineInput{
			{AccountID: resolved[p.codes.SalaryExpense].ID, Debit: totals.Gross, Description: "Gross salaries"},
			{AccountID: resolved[p.codes.EmployerContributionExpense].ID, Debit: totals.EmployerContribution, Description: "Employer contributions"},
			{AccountID: resolved[p.codes.NetPayPayable].ID, Credit: totals.NetPay(), Description: "Net pay payable"},
			{AccountID: resolved[p.codes.TaxPayable].ID, Credit: totals.TaxPayable(), Description: "Tax and employee contributions withheld"},
			{AccountID: resolved[p.codes.EmployerContributionPayable].ID, Credit: totals.EmployerContribution, Description: "Employer contributions payable"},
		},
	}
	return p.post(ctx, tenant, in)
}

// post writes the entry, retrying balance conflicts. A source that is already
// linked resolves to the existing entry.
func (p *Producers) post(ctx context.Context, tenant shared.Tenant, in journals.CreateInput) (journals.JournalEntry, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.initial
	policy.MaxElapsedTime = p.maxElapsed

	attempt := 0
	entry, err := backoff.RetryWithData(func() (journals.JournalEntry, error) {
		attempt++
		entry, err := p.ledger.CreateJournalEntry(ctx, tenant, in)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, acctshared.ErrSourceAlreadyLinked):
			existing, findErr := p.ledger.FindBySource(ctx, tenant, in.Source, in.SourceID)
			if findErr != nil {
				return journals.JournalEntry{}, backoff.Permanent(findErr)
			}
			p.logger.Info("ledger posting already linked",
				slog.String("source", in.Source), slog.String("source_id", in.SourceID), slog.Int64("entry_id", existing.ID))
			return existing, nil
		case errors.Is(err, shared.ErrConcurrency):
			p.logger.Warn("ledger posting conflict, retrying",
				slog.String("source", in.Source), slog.String("source_id", in.SourceID), slog.Int("attempt", attempt))
			return journals.JournalEntry{}, err
		default:
			return journals.JournalEntry{}, backoff.Permanent(err)
		}
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return journals.JournalEntry{}, err
	}
	return entry, nil
}
