package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var tenant = shared.MustTenant("0b6f4c1e-3c55-4d8e-9a64-1f0c2d7e9a01")

type stubResolver struct {
	byCode map[string]accounts.Account
}

func newResolver(codes ...string) *stubResolver {
	r := &stubResolver{byCode: map[string]accounts.Account{}}
	for i, code := range codes {
		r.byCode[code] = accounts.Account{ID: int64(i + 1), TenantID: tenant.ID(), Code: code}
	}
	return r
}

func (r *stubResolver) FindByCodes(_ context.Context, _ shared.Tenant, codes []string) (map[string]accounts.Account, error) {
	out := map[string]accounts.Account{}
	var missing []string
	for _, code := range codes {
		a, ok := r.byCode[code]
		if !ok {
			missing = append(missing, code)
			continue
		}
		out[code] = a
	}
	if err := shared.NewMissingAccountsError(missing); err != nil {
		return nil, err
	}
	return out, nil
}

type stubLedger struct {
	calls    int
	failures []error
	inputs   []journals.CreateInput
	bySource map[string]journals.JournalEntry
}

func (l *stubLedger) CreateJournalEntry(_ context.Context, _ shared.Tenant, in journals.CreateInput) (journals.JournalEntry, error) {
	l.calls++
	l.inputs = append(l.inputs, in)
	if len(l.failures) > 0 {
		err := l.failures[0]
		l.failures = l.failures[1:]
		return journals.JournalEntry{}, err
	}
	return journals.JournalEntry{ID: int64(l.calls), Source: in.Source, SourceID: in.SourceID, Status: in.Status}, nil
}

func (l *stubLedger) FindBySource(_ context.Context, _ shared.Tenant, source, sourceID string) (journals.JournalEntry, error) {
	entry, ok := l.bySource[source+"/"+sourceID]
	if !ok {
		return journals.JournalEntry{}, acctshared.ErrJournalNotFound
	}
	return entry, nil
}

func amt(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func allCodes() *stubResolver {
	c := DefaultPostingAccounts()
	return newResolver(c.Cash, c.UndepositedFunds, c.AccountsReceivable, c.SalaryExpense,
		c.EmployerContributionExpense, c.NetPayPayable, c.TaxPayable, c.EmployerContributionPayable)
}

func newProducers(ledger *stubLedger, resolver *stubResolver) *Producers {
	p := NewProducers(ledger, resolver, DefaultPostingAccounts(), nil)
	p.WithRetry(time.Millisecond, 500*time.Millisecond)
	return p
}

func payrollRun() PayrollRunCompleted {
	return PayrollRunCompleted{
		RunID:   "RUN-2024-03",
		PayDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Entries: []PayrollEntry{
			{EmployeeID: "E1", Gross: amt("6000"), EmployerContribution: amt("780"), IncomeTax: amt("900"), EmployeeContribution: amt("330")},
			{EmployeeID: "E2", Gross: amt("4000"), EmployerContribution: amt("520"), IncomeTax: amt("600"), EmployeeContribution: amt("220")},
		},
	}
}

func TestPostPayrollRunBuildsFiveBalancedLines(t *testing.T) {
	ledger := &stubLedger{}
	resolver := allCodes()
	p := newProducers(ledger, resolver)

	_, err := p.PostPayrollRun(context.Background(), tenant, payrollRun())
	require.NoError(t, err)
	require.Len(t, ledger.inputs, 1)

	in := ledger.inputs[0]
	assert.Equal(t, SourcePayroll, in.Source)
	assert.Equal(t, "RUN-2024-03", in.SourceID)
	assert.Equal(t, journals.StatusPosted, in.Status)
	require.Len(t, in.Lines, 5)

	res, err := journals.CheckLines(in.Lines)
	require.NoError(t, err)
	assert.True(t, res.TotalDebit.Equal(amt("11300")), res.TotalDebit.String())
	assert.True(t, res.TotalCredit.Equal(amt("11300")), res.TotalCredit.String())

	codes := DefaultPostingAccounts()
	want := map[string][2]string{
		codes.SalaryExpense:               {"10000", "0"},
		codes.EmployerContributionExpense: {"1300", "0"},
		codes.NetPayPayable:               {"0", "7950"},
		codes.TaxPayable:                  {"0", "2050"},
		codes.EmployerContributionPayable: {"0", "1300"},
	}
	for code, sides := range want {
		id := resolver.byCode[code].ID
		var found bool
		for _, line := range in.Lines {
			if line.AccountID != id {
				continue
			}
			found = true
			assert.True(t, line.Debit.Equal(amt(sides[0])), "%s debit %s", code, line.Debit)
			assert.True(t, line.Credit.Equal(amt(sides[1])), "%s credit %s", code, line.Credit)
		}
		assert.True(t, found, "line for %s", code)
	}
}

func TestPostPayrollRunKeepsZeroLines(t *testing.T) {
	ledger := &stubLedger{}
	p := newProducers(ledger, allCodes())
	run := PayrollRunCompleted{RunID: "RUN-1", PayDate: time.Now(), Entries: []PayrollEntry{{EmployeeID: "E1", Gross: amt("1000")}}}

	_, err := p.PostPayrollRun(context.Background(), tenant, run)
	require.NoError(t, err)
	require.Len(t, ledger.inputs[0].Lines, 5)
}

func TestPostPayrollRunMissingAccounts(t *testing.T) {
	ledger := &stubLedger{}
	codes := DefaultPostingAccounts()
	p := newProducers(ledger, newResolver(codes.SalaryExpense, codes.NetPayPayable))

	_, err := p.PostPayrollRun(context.Background(), tenant, payrollRun())
	var missing *shared.MissingAccountsError
	require.ErrorAs(t, err, &missing)
	assert.ErrorIs(t, err, shared.ErrPrecondition)
	assert.Equal(t, []string{codes.TaxPayable, codes.EmployerContributionPayable, codes.EmployerContributionExpense}, missing.Codes)
	assert.Zero(t, ledger.calls)
}

func TestUnsetPostingCodesArePreconditionFailures(t *testing.T) {
	ledger := &stubLedger{}
	codes := DefaultPostingAccounts()
	codes.UndepositedFunds = ""
	codes.TaxPayable = " "
	p := NewProducers(ledger, allCodes(), codes, nil)
	ctx := context.Background()

	_, err := p.PostInvoicePayment(ctx, tenant, InvoicePaymentReceived{
		PaymentID: "PAY-1", InvoiceID: "INV-1", Amount: amt("100"), Method: "transfer",
		PaidAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	var missing *shared.MissingAccountsError
	require.ErrorAs(t, err, &missing)
	assert.ErrorIs(t, err, shared.ErrPrecondition)
	assert.NotErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, []string{"undeposited_funds (unset)"}, missing.Codes)

	_, err = p.PostInvoicePayment(ctx, tenant, InvoicePaymentReceived{
		PaymentID: "PAY-2", InvoiceID: "INV-1", Amount: amt("100"), Method: "cash",
		PaidAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = p.PostPayrollRun(ctx, tenant, payrollRun())
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"tax_payable (unset)"}, missing.Codes)
	assert.Equal(t, 1, ledger.calls)
}

func TestPostPayrollRunRejectsBadRuns(t *testing.T) {
	p := newProducers(&stubLedger{}, allCodes())
	ctx := context.Background()

	run := payrollRun()
	run.Entries[0].IncomeTax = amt("-1")
	_, err := p.PostPayrollRun(ctx, tenant, run)
	assert.ErrorIs(t, err, acctshared.ErrInvalidAmount)

	run = payrollRun()
	run.Entries[0].IncomeTax = amt("9000")
	_, err = p.PostPayrollRun(ctx, tenant, run)
	assert.ErrorIs(t, err, acctshared.ErrInvalidAmount)

	_, err = p.PostPayrollRun(ctx, tenant, PayrollRunCompleted{RunID: "R", PayDate: time.Now()})
	assert.ErrorIs(t, err, acctshared.ErrInvalidEntry)

	_, err = p.PostPayrollRun(ctx, shared.Tenant{}, payrollRun())
	assert.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestPostInvoicePaymentDepositAccount(t *testing.T) {
	resolver := allCodes()
	codes := DefaultPostingAccounts()
	cases := map[string]string{
		"cash":          codes.Cash,
		" CASH ":        codes.Cash,
		"bank_transfer": codes.UndepositedFunds,
		"":              codes.UndepositedFunds,
	}
	for method, code := range cases {
		ledger := &stubLedger{}
		p := newProducers(ledger, resolver)
		_, err := p.PostInvoicePayment(context.Background(), tenant, InvoicePaymentReceived{
			PaymentID: "PAY-1", InvoiceID: "INV-7", Amount: amt("250.00"), Method: method, PaidAt: time.Now(),
		})
		require.NoError(t, err, method)
		in := ledger.inputs[0]
		require.Len(t, in.Lines, 2)
		assert.Equal(t, resolver.byCode[code].ID, in.Lines[0].AccountID, method)
		assert.True(t, in.Lines[0].Debit.Equal(amt("250")))
		assert.Equal(t, resolver.byCode[codes.AccountsReceivable].ID, in.Lines[1].AccountID)
		assert.True(t, in.Lines[1].Credit.Equal(amt("250")))
		assert.Equal(t, SourceInvoicePayment, in.Source)
		assert.Equal(t, "PAY-1", in.SourceID)
	}
}

func TestPostInvoicePaymentRejectsNonPositiveAmount(t *testing.T) {
	ledger := &stubLedger{}
	p := newProducers(ledger, allCodes())
	for _, v := range []string{"0", "-10", "0.001"} {
		_, err := p.PostInvoicePayment(context.Background(), tenant, InvoicePaymentReceived{
			PaymentID: "PAY-1", Amount: amt(v), Method: "cash", PaidAt: time.Now(),
		})
		assert.ErrorIs(t, err, acctshared.ErrInvalidAmount, v)
	}
	assert.Zero(t, ledger.calls)
}

func TestProducerRetriesBalanceConflicts(t *testing.T) {
	ledger := &stubLedger{failures: []error{acctshared.ErrBalanceConflict, acctshared.ErrBalanceConflict}}
	p := newProducers(ledger, allCodes())

	entry, err := p.PostPayrollRun(context.Background(), tenant, payrollRun())
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.calls)
	assert.Equal(t, int64(3), entry.ID)
}

func TestProducerDoesNotRetryPermanentErrors(t *testing.T) {
	ledger := &stubLedger{failures: []error{acctshared.ErrUnbalanced}}
	p := newProducers(ledger, allCodes())

	_, err := p.PostPayrollRun(context.Background(), tenant, payrollRun())
	require.ErrorIs(t, err, acctshared.ErrUnbalanced)
	assert.Equal(t, 1, ledger.calls)
}

func TestProducerResolvesAlreadyLinkedSource(t *testing.T) {
	existing := journals.JournalEntry{ID: 42, Source: SourceInvoicePayment, SourceID: "PAY-1", Status: journals.StatusPosted}
	ledger := &stubLedger{
		failures: []error{acctshared.ErrSourceAlreadyLinked},
		bySource: map[string]journals.JournalEntry{SourceInvoicePayment + "/PAY-1": existing},
	}
	p := newProducers(ledger, allCodes())

	entry, err := p.PostInvoicePayment(context.Background(), tenant, InvoicePaymentReceived{
		PaymentID: "PAY-1", Amount: amt("10"), Method: "cash", PaidAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), entry.ID)
	assert.Equal(t, 1, ledger.calls)
}

func TestProducerStopsOnCancelledContext(t *testing.T) {
	ledger := &stubLedger{failures: []error{acctshared.ErrBalanceConflict, acctshared.ErrBalanceConflict, acctshared.ErrBalanceConflict}}
	p := newProducers(ledger, allCodes())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.PostPayrollRun(ctx, tenant, payrollRun())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, shared.ErrConcurrency))
}
