package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	tenantA = shared.MustTenant("0b6f4c1e-3c55-4d8e-9a64-1f0c2d7e9a01")
	tenantB = shared.MustTenant("5d2a8f90-7b1c-4e3f-8a2d-6c9e0f1b2a3c")
)

type ledger struct {
	store    *Store
	accounts *accounts.Service
	journals *journals.Service
	reports  *reports.Service
}

func newLedger(t *testing.T) ledger {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	accountSvc := accounts.NewService(store.Accounts())
	journalSvc := journals.NewService(store.Journals(), journals.NewValidator(accountSvc), balances.NewAggregator(), store, nil)
	reportSvc := reports.NewService(store.Reports(), nil)
	journalSvc.AddObserver(reportSvc)
	return ledger{store: store, accounts: accountSvc, journals: journalSvc, reports: reportSvc}
}

func (l ledger) account(t *testing.T, tenant shared.Tenant, code, name string, typ accounts.AccountType) accounts.Account {
	t.Helper()
	a, err := l.accounts.CreateAccount(context.Background(), tenant, accounts.CreateInput{Code: code, Name: name, Type: typ})
	require.NoError(t, err)
	return a
}

func amt(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sale(cash, sales accounts.Account, status journals.Status, amount string) journals.CreateInput {
	return journals.CreateInput{
		Reference: "INV-1",
		EntryDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Status:    status,
		Lines: []journals.LineInput{
			{AccountID: cash.ID, Debit: amt(amount)},
			{AccountID: sales.ID, Credit: amt(amount)},
		},
	}
}

func TestAccountsScopedPerTenant(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	l.account(t, tenantB, "1110", "Cash", accounts.AccountTypeAsset)

	_, err := l.accounts.CreateAccount(ctx, tenantA, accounts.CreateInput{Code: "1110", Name: "Again", Type: accounts.AccountTypeAsset})
	require.ErrorIs(t, err, acctshared.ErrDuplicateAccountCode)

	_, err = l.accounts.Get(ctx, tenantB, cash.ID)
	require.ErrorIs(t, err, acctshared.ErrAccountNotFound)

	got, err := l.accounts.FindByCode(ctx, tenantA, "1110")
	require.NoError(t, err)
	assert.Equal(t, cash.ID, got.ID)
	assert.Equal(t, tenantA.ID(), got.TenantID)
	assert.True(t, got.IsActive)

	_, err = l.accounts.FindByCodes(ctx, tenantA, []string{"1110", "9999"})
	var missing *shared.MissingAccountsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"9999"}, missing.Codes)
}

func TestPostedEntryUpdatesTrialBalance(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	entry, err := l.journals.CreateJournalEntry(ctx, tenantA, sale(cash, sales, journals.StatusPosted, "500"))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	assert.NotNil(t, entry.PostedAt)
	assert.Equal(t, "Cash", entry.Lines[0].Account.Name)

	tb, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	assert.True(t, tb.Balanced)
	assert.True(t, tb.TotalDebit.Equal(amt("500")))
	assert.True(t, tb.TotalCredit.Equal(amt("500")))

	other, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024, Period: 4})
	require.NoError(t, err)
	assert.Empty(t, other.Rows)

	_, err = l.accounts.Update(ctx, tenantA, cash.ID, accounts.UpdateInput{Code: ptr("1111")})
	require.ErrorIs(t, err, acctshared.ErrAccountCodeLocked)
}

func TestUnbalancedEntryWritesNothing(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	in := sale(cash, sales, journals.StatusPosted, "500")
	in.Lines[1].Credit = amt("499.99")
	_, err := l.journals.CreateJournalEntry(ctx, tenantA, in)
	require.ErrorIs(t, err, acctshared.ErrUnbalanced)

	entries, err := l.journals.List(ctx, tenantA, journals.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	materialized, err := l.store.Reports().MaterializedBalances(ctx, tenantA)
	require.NoError(t, err)
	assert.Empty(t, materialized)
}

func TestDraftPostedOnce(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	draft, err := l.journals.CreateJournalEntry(ctx, tenantA, sale(cash, sales, journals.StatusDraft, "120.50"))
	require.NoError(t, err)
	assert.Nil(t, draft.PostedAt)

	tb, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{})
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)

	approver := int64(7)
	posted, err := l.journals.PostJournal(ctx, tenantA, draft.ID, journals.PostInput{ApprovedBy: &approver})
	require.NoError(t, err)
	assert.Equal(t, journals.StatusPosted, posted.Status)
	require.NotNil(t, posted.ApprovedBy)
	assert.Equal(t, approver, *posted.ApprovedBy)

	_, err = l.journals.PostJournal(ctx, tenantA, draft.ID, journals.PostInput{})
	require.ErrorIs(t, err, acctshared.ErrAlreadyPosted)

	_, err = l.journals.PostJournal(ctx, tenantB, draft.ID, journals.PostInput{})
	require.ErrorIs(t, err, acctshared.ErrJournalNotFound)

	tb, err = l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024})
	require.NoError(t, err)
	assert.True(t, tb.TotalDebit.Equal(amt("120.50")))
}

func TestTenantIsolation(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)
	l.account(t, tenantB, "1110", "Cash", accounts.AccountTypeAsset)

	entry, err := l.journals.CreateJournalEntry(ctx, tenantA, sale(cash, sales, journals.StatusPosted, "75"))
	require.NoError(t, err)

	_, err = l.journals.CreateJournalEntry(ctx, tenantB, sale(cash, sales, journals.StatusPosted, "75"))
	require.ErrorIs(t, err, acctshared.ErrInvalidAccount)

	_, err = l.journals.Get(ctx, tenantB, entry.ID)
	require.ErrorIs(t, err, acctshared.ErrJournalNotFound)

	tb, err := l.reports.GetTrialBalance(ctx, tenantB, reports.Query{})
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)

	tenants, err := l.reports.Tenants(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []shared.Tenant{tenantA, tenantB}, tenants)
}

func TestSourceLinkAndReversal(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	in := sale(cash, sales, journals.StatusPosted, "300")
	in.Source, in.SourceID = "invoice_payment", "PAY-9"
	in.Metadata = map[string]string{"invoice": "INV-1"}
	entry, err := l.journals.CreateJournalEntry(ctx, tenantA, in)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", entry.Metadata["invoice"])

	_, err = l.journals.CreateJournalEntry(ctx, tenantA, in)
	require.ErrorIs(t, err, acctshared.ErrSourceAlreadyLinked)

	found, err := l.journals.FindBySource(ctx, tenantA, "invoice_payment", "PAY-9")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, found.ID)

	reversal, err := l.journals.ReverseJournal(ctx, tenantA, entry.ID, journals.ReverseInput{})
	require.NoError(t, err)
	assert.Equal(t, journals.SourceReversal, reversal.Source)
	assert.True(t, reversal.Lines[0].Credit.Equal(amt("300")))

	_, err = l.journals.ReverseJournal(ctx, tenantA, entry.ID, journals.ReverseInput{})
	require.ErrorIs(t, err, acctshared.ErrSourceAlreadyLinked)

	tb, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	for _, row := range tb.Rows {
		assert.True(t, row.Balance.IsZero(), row.Code)
	}

	var audits int
	require.NoError(t, l.store.db.QueryRow(`SELECT COUNT(*) FROM audit_logs WHERE tenant_id=?`, tenantA.String()).Scan(&audits))
	assert.Equal(t, 2, audits)
}

func TestIntegrityDetectsDrift(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)
	_, err := l.journals.CreateJournalEntry(ctx, tenantA, sale(cash, sales, journals.StatusPosted, "40"))
	require.NoError(t, err)

	report, err := l.reports.CheckIntegrity(ctx, tenantA)
	require.NoError(t, err)
	assert.True(t, report.OK())

	_, err = l.store.db.Exec(`UPDATE account_balances SET debit='41', balance='41' WHERE account_id=?`, cash.ID)
	require.NoError(t, err)

	report, err = l.reports.CheckIntegrity(ctx, tenantA)
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, cash.ID, report.Drifts[0].Key.AccountID)
}

func TestPayrollRunThroughLedger(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	codes := integration.DefaultPostingAccounts()
	l.account(t, tenantA, codes.SalaryExpense, "Salaries", accounts.AccountTypeExpense)
	l.account(t, tenantA, codes.EmployerContributionExpense, "Employer contributions", accounts.AccountTypeExpense)
	l.account(t, tenantA, codes.NetPayPayable, "Net pay payable", accounts.AccountTypeLiability)
	l.account(t, tenantA, codes.TaxPayable, "Tax payable", accounts.AccountTypeLiability)
	producers := integration.NewProducers(l.journals, l.accounts, codes, nil)

	run := integration.PayrollRunCompleted{
		RunID:   "RUN-7",
		PayDate: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Entries: []integration.PayrollEntry{{
			EmployeeID: "E1", Gross: amt("10000"), EmployerContribution: amt("1300"), IncomeTax: amt("1500"), EmployeeContribution: amt("550"),
		}},
	}
	_, err := producers.PostPayrollRun(ctx, tenantA, run)
	var missing *shared.MissingAccountsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{codes.EmployerContributionPayable}, missing.Codes)

	l.account(t, tenantA, codes.EmployerContributionPayable, "Employer contributions payable", accounts.AccountTypeLiability)
	entry, err := producers.PostPayrollRun(ctx, tenantA, run)
	require.NoError(t, err)
	require.Len(t, entry.Lines, 5)
	debit, credit := entry.Totals()
	assert.True(t, debit.Equal(amt("11300")))
	assert.True(t, credit.Equal(amt("11300")))

	again, err := producers.PostPayrollRun(ctx, tenantA, run)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)

	report, err := l.reports.CheckIntegrity(ctx, tenantA)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.True(t, report.TotalDebit.Equal(amt("11300")))
}

func TestSubCentLinesBalanceAtCurrencyPrecision(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	bank := l.account(t, tenantA, "1120", "Bank", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	entry, err := l.journals.CreateJournalEntry(ctx, tenantA, journals.CreateInput{
		EntryDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:    journals.StatusPosted,
		Lines: []journals.LineInput{
			{AccountID: cash.ID, Debit: amt("0.004")},
			{AccountID: bank.ID, Debit: amt("0.004")},
			{AccountID: sales.ID, Credit: amt("0.01")},
		},
	})
	require.NoError(t, err)
	require.Len(t, entry.Lines, 3)
	assert.True(t, entry.Lines[0].Debit.Equal(amt("0.004")), entry.Lines[0].Debit.String())

	tb, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.True(t, tb.TotalDebit.Equal(amt("0.008")))

	report, err := l.reports.CheckIntegrity(ctx, tenantA)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestTrialBalanceKeepsPeriodRows(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	march := sale(cash, sales, journals.StatusPosted, "100")
	_, err := l.journals.CreateJournalEntry(ctx, tenantA, march)
	require.NoError(t, err)
	april := sale(cash, sales, journals.StatusPosted, "40")
	april.EntryDate = time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	_, err = l.journals.CreateJournalEntry(ctx, tenantA, april)
	require.NoError(t, err)

	for _, q := range []reports.Query{{FiscalYear: 2024}, {}} {
		tb, err := l.reports.GetTrialBalance(ctx, tenantA, q)
		require.NoError(t, err)
		require.Len(t, tb.Rows, 4, "%+v", q)
		first := tb.Rows[0]
		assert.Equal(t, cash.ID, first.AccountID)
		assert.Equal(t, 2024, first.FiscalYear)
		assert.Equal(t, 3, first.Period)
		assert.True(t, first.Debit.Equal(amt("100")))
		assert.Equal(t, 4, tb.Rows[1].Period)
		assert.True(t, tb.Rows[1].Debit.Equal(amt("40")))
		assert.True(t, tb.TotalDebit.Equal(amt("140")))
		assert.True(t, tb.Balanced)

		require.Len(t, tb.Groups, 2)
		require.Len(t, tb.Groups[0].Accounts, 1)
		assert.True(t, tb.Groups[0].Accounts[0].Debit.Equal(amt("140")))
	}

	tb, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024, Period: 4})
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	assert.Equal(t, 4, tb.Rows[0].Period)
}

func TestConcurrentPostingsAccumulateExactly(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	cash := l.account(t, tenantA, "1110", "Cash", accounts.AccountTypeAsset)
	sales := l.account(t, tenantA, "4100", "Sales", accounts.AccountTypeIncome)

	const workers = 25
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			_, err := l.journals.CreateJournalEntry(ctx, tenantA, sale(cash, sales, journals.StatusPosted, "10.10"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	tb, err := l.reports.GetTrialBalance(ctx, tenantA, reports.Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	require.Len(t, tb.Rows, 2)
	assert.True(t, tb.Rows[0].Debit.Equal(amt("252.50")), tb.Rows[0].Debit.String())
	assert.True(t, tb.Rows[1].Credit.Equal(amt("252.50")), tb.Rows[1].Credit.String())
	assert.True(t, tb.Balanced)

	report, err := l.reports.CheckIntegrity(ctx, tenantA)
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func ptr[T any](v T) *T {
	return &v
}
