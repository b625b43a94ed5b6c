package reports

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

var tenantA = shared.MustTenant("0b6f4c1e-3c55-4d8e-9a64-1f0c2d7e9a01")

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestBuildTrialBalance(t *testing.T) {
	rows := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: accounts.AccountTypeAsset, Debit: d("200"), Credit: d("150")},
		{Code: "1001", Name: "Bank", Type: accounts.AccountTypeAsset, Debit: d("100"), Credit: d("50")},
		{Code: "2000", Name: "Accounts Payable", Type: accounts.AccountTypeLiability, Debit: d("10"), Credit: d("400")},
	}

	tb := BuildTrialBalance(rows)
	if len(tb.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(tb.Groups))
	}
	if !tb.TotalDebit.Equal(d("310")) {
		t.Fatalf("unexpected total debit: %v", tb.TotalDebit)
	}
	if !tb.TotalCredit.Equal(d("600")) {
		t.Fatalf("unexpected total credit: %v", tb.TotalCredit)
	}
	if tb.Balanced {
		t.Fatalf("expected unbalanced report")
	}
	if !tb.Groups[0].Balance.Equal(d("100")) {
		t.Fatalf("unexpected group balance: %v", tb.Groups[0].Balance)
	}
}

func TestBuildTrialBalanceBalanced(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Code: "1110", Debit: d("500")},
		{Code: "4100", Credit: d("500")},
	})
	if !tb.Balanced || len(tb.Rows) != 2 {
		t.Fatalf("expected balanced two-row report, got %+v", tb)
	}
}

func TestBuildTrialBalanceKeepsPeriodRows(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{AccountID: 2, Code: "4100", FiscalYear: 2024, Period: 3, Credit: d("100")},
		{AccountID: 1, Code: "1110", FiscalYear: 2024, Period: 4, Debit: d("40")},
		{AccountID: 1, Code: "1110", FiscalYear: 2024, Period: 3, Debit: d("100")},
		{AccountID: 2, Code: "4100", FiscalYear: 2024, Period: 4, Credit: d("40")},
	})
	require.Len(t, tb.Rows, 4)
	assert.Equal(t, "1110", tb.Rows[0].Code)
	assert.Equal(t, 3, tb.Rows[0].Period)
	assert.Equal(t, 4, tb.Rows[1].Period)
	assert.True(t, tb.Rows[1].Balance.Equal(d("40")))
	require.Len(t, tb.Groups, 2)
	require.Len(t, tb.Groups[0].Accounts, 1)
	assert.True(t, tb.Groups[0].Accounts[0].Debit.Equal(d("140")))
	assert.True(t, tb.Balanced)
}

func TestBuildTrialBalanceComparesAtCurrencyPrecision(t *testing.T) {
	tb := BuildTrialBalance([]AccountBalance{
		{Code: "1110", Debit: d("0.004")},
		{Code: "1120", Debit: d("0.004")},
		{Code: "4100", Credit: d("0.01")},
	})
	assert.True(t, tb.Balanced)
	assert.True(t, tb.TotalDebit.Equal(d("0.008")))
}

func TestQueryValidate(t *testing.T) {
	valid := []Query{{}, {FiscalYear: 2024}, {FiscalYear: 2024, Period: 3}, {FiscalYear: 2024, Period: 12}}
	for _, q := range valid {
		if err := q.Validate(); err != nil {
			t.Fatalf("%+v: unexpected error %v", q, err)
		}
	}
	invalid := []Query{{FiscalYear: 2024, Period: 13}, {FiscalYear: 2024, Period: -1}, {Period: 3}, {FiscalYear: -1}}
	for _, q := range invalid {
		if err := q.Validate(); !errors.Is(err, acctshared.ErrInvalidReportQuery) {
			t.Fatalf("%+v: expected invalid query, got %v", q, err)
		}
	}
}

type stubRepo struct {
	mu           sync.Mutex
	calls        int
	rows         []AccountBalance
	materialized []balances.AccountBalance
	recomputed   []balances.AccountBalance
	delay        time.Duration
}

func (r *stubRepo) TrialBalance(ctx context.Context, tenant shared.Tenant, q Query) ([]AccountBalance, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.rows, nil
}

func (r *stubRepo) MaterializedBalances(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error) {
	return r.materialized, nil
}

func (r *stubRepo) PostedLineTotals(ctx context.Context, tenant shared.Tenant) ([]balances.AccountBalance, error) {
	return r.recomputed, nil
}

func (r *stubRepo) Tenants(ctx context.Context) ([]shared.Tenant, error) {
	return []shared.Tenant{tenantA}, nil
}

func (r *stubRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newCachedService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, cache.NewVersioned(client, time.Minute))
}

func TestGetTrialBalanceCachesUntilLedgerChanges(t *testing.T) {
	repo := &stubRepo{rows: []AccountBalance{{Code: "1110", Debit: d("500")}, {Code: "4100", Credit: d("500")}}}
	svc := newCachedService(t, repo)
	ctx := context.Background()

	tb, err := svc.GetTrialBalance(ctx, tenantA, Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	assert.True(t, tb.Balanced)
	assert.Equal(t, tenantA.ID(), tb.TenantID)
	_, err = svc.GetTrialBalance(ctx, tenantA, Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, repo.callCount())

	require.NoError(t, svc.LedgerChanged(ctx, tenantA))
	_, err = svc.GetTrialBalance(ctx, tenantA, Query{FiscalYear: 2024, Period: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.callCount())
}

func TestGetTrialBalanceCollapsesConcurrentBuilds(t *testing.T) {
	repo := &stubRepo{rows: []AccountBalance{{Code: "1110", Debit: d("1")}, {Code: "4100", Credit: d("1")}}, delay: 50 * time.Millisecond}
	svc := NewService(repo, nil)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetTrialBalance(context.Background(), tenantA, Query{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, repo.callCount(), 5)
}

func TestGetTrialBalanceRejectsInvalidQuery(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)
	_, err := svc.GetTrialBalance(context.Background(), tenantA, Query{FiscalYear: 2024, Period: 13})
	assert.ErrorIs(t, err, acctshared.ErrInvalidReportQuery)
	_, err = svc.GetTrialBalance(context.Background(), shared.Tenant{}, Query{})
	assert.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestCheckIntegrityDetectsDrift(t *testing.T) {
	key := balances.AccountBalance{AccountID: 1, FiscalYear: 2024, Period: 3}
	actual := key
	actual.Debit = d("600")
	expected := key
	expected.Debit = d("500")
	repo := &stubRepo{
		rows:         []AccountBalance{{Code: "1110", Debit: d("600")}, {Code: "4100", Credit: d("500")}},
		materialized: []balances.AccountBalance{actual},
		recomputed:   []balances.AccountBalance{expected},
	}
	report, err := NewService(repo, nil).CheckIntegrity(context.Background(), tenantA)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.False(t, report.Balanced)
	require.Len(t, report.Drifts, 1)
	assert.True(t, report.Drifts[0].ExpectedDebit.Equal(d("500")))
	assert.True(t, report.Drifts[0].ActualDebit.Equal(d("600")))
}

func TestCompareBalancesFindsMissingRows(t *testing.T) {
	recomputed := []balances.AccountBalance{{AccountID: 2, FiscalYear: 2024, Period: 1, Credit: d("5")}}
	drifts := CompareBalances(nil, recomputed)
	require.Len(t, drifts, 1)
	assert.Equal(t, int64(2), drifts[0].Key.AccountID)
	assert.Empty(t, CompareBalances(recomputed, recomputed))
}

func TestHandlerTrialBalance(t *testing.T) {
	svc := NewService(&stubRepo{rows: []AccountBalance{{Code: "1110", Debit: d("5")}, {Code: "4100", Credit: d("5")}}}, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)

	req := httptest.NewRequest(http.MethodGet, "/reports/trial-balance?fiscal_year=2024&period=3", nil)
	req = req.WithContext(shared.ContextWithTenant(req.Context(), tenantA))
	rec := httptest.NewRecorder()
	h.trialBalance(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/reports/trial-balance?period=3", nil)
	req = req.WithContext(shared.ContextWithTenant(req.Context(), tenantA))
	rec = httptest.NewRecorder()
	h.trialBalance(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
