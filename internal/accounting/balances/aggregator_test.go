package balances

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var testTenant = shared.MustTenant("0b6f4c1e-3c55-4d8e-9a64-1f0c2d7e9a01")

type stubStore struct {
	date     time.Time
	lines    []PostingLine
	applied  []Key
	balances map[Key]AccountBalance
	failOn   int64
}

func (s *stubStore) PostingLines(ctx context.Context, tenant shared.Tenant, entryID int64) (time.Time, []PostingLine, error) {
	return s.date, s.lines, nil
}

func (s *stubStore) AddToBalance(ctx context.Context, tenant shared.Tenant, key Key, debit, credit decimal.Decimal) error {
	if key.AccountID == s.failOn {
		return shared.ErrConcurrency
	}
	if s.balances == nil {
		s.balances = make(map[Key]AccountBalance)
	}
	s.applied = append(s.applied, key)
	b := s.balances[key]
	b.Debit = b.Debit.Add(debit)
	b.Credit = b.Credit.Add(credit)
	b.Balance = b.Debit.Sub(b.Credit)
	s.balances[key] = b
	return nil
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApplyPostingUsesCalendarPeriod(t *testing.T) {
	store := &stubStore{
		date: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		lines: []PostingLine{
			{AccountID: 1, Debit: dec("500"), Credit: decimal.Zero},
			{AccountID: 2, Debit: decimal.Zero, Credit: dec("500")},
		},
	}
	require.NoError(t, NewAggregator().ApplyPosting(context.Background(), store, testTenant, 10))

	cash := store.balances[Key{AccountID: 1, FiscalYear: 2024, Period: 3}]
	sales := store.balances[Key{AccountID: 2, FiscalYear: 2024, Period: 3}]
	assert.True(t, cash.Debit.Equal(dec("500")))
	assert.True(t, cash.Balance.Equal(dec("500")))
	assert.True(t, sales.Credit.Equal(dec("500")))
	assert.True(t, sales.Balance.Equal(dec("-500")))
}

func TestApplyPostingFoldsAndOrdersKeys(t *testing.T) {
	store := &stubStore{
		date: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		lines: []PostingLine{
			{AccountID: 9, Credit: dec("30")},
			{AccountID: 3, Debit: dec("10.005")},
			{AccountID: 3, Debit: dec("19.995")},
		},
	}
	require.NoError(t, NewAggregator().ApplyPosting(context.Background(), store, testTenant, 1))
	require.Len(t, store.applied, 2)
	assert.Equal(t, int64(3), store.applied[0].AccountID)
	assert.Equal(t, int64(9), store.applied[1].AccountID)
	assert.True(t, store.balances[store.applied[0]].Debit.Equal(dec("30")))
}

func TestApplyPostingIsCommutative(t *testing.T) {
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	first := []PostingLine{{AccountID: 1, Debit: dec("100")}, {AccountID: 2, Credit: dec("100")}}
	second := []PostingLine{{AccountID: 2, Debit: dec("40")}, {AccountID: 1, Credit: dec("40")}}

	forward := &stubStore{date: date}
	backward := &stubStore{date: date}
	agg := NewAggregator()
	for _, lines := range [][]PostingLine{first, second} {
		forward.lines = lines
		require.NoError(t, agg.ApplyPosting(context.Background(), forward, testTenant, 1))
	}
	for _, lines := range [][]PostingLine{second, first} {
		backward.lines = lines
		require.NoError(t, agg.ApplyPosting(context.Background(), backward, testTenant, 1))
	}
	for key, b := range forward.balances {
		other := backward.balances[key]
		assert.True(t, b.Debit.Equal(other.Debit), "debit %v", key)
		assert.True(t, b.Credit.Equal(other.Credit), "credit %v", key)
	}
}

func TestApplyPostingPropagatesConflict(t *testing.T) {
	store := &stubStore{
		date:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		lines:  []PostingLine{{AccountID: 1, Debit: dec("1")}, {AccountID: 2, Credit: dec("1")}},
		failOn: 2,
	}
	err := NewAggregator().ApplyPosting(context.Background(), store, testTenant, 1)
	if !errors.Is(err, shared.ErrConcurrency) {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestApplyPostingRequiresTenant(t *testing.T) {
	err := NewAggregator().ApplyPosting(context.Background(), &stubStore{}, shared.Tenant{}, 1)
	if !errors.Is(err, shared.ErrTenantRequired) {
		t.Fatalf("expected tenant error, got %v", err)
	}
}
