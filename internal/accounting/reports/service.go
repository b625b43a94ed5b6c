package reports

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// CacheRecorder receives cache hit/miss counts.
type CacheRecorder interface {
	ObserveReportCache(hit bool)
}

// Service builds trial balances from materialized account balances.
type Service struct {
	repo    Repository
	cache   *cache.Versioned
	group   singleflight.Group
	metrics CacheRecorder
	now     func() time.Time
}

// NewService constructs the reporter. cache may be nil.
func NewService(repo Repository, c *cache.Versioned) *Service {
	return &Service{repo: repo, cache: c, now: time.Now}
}

// WithMetrics attaches cache counters.
func (s *Service) WithMetrics(m CacheRecorder) {
	s.metrics = m
}

// GetTrialBalance returns every balance row in range, per-account groups and a
// Balanced flag.
func (s *Service) GetTrialBalance(ctx context.Context, tenant shared.Tenant, q Query) (TrialBalance, error) {
	if err := tenant.Require(); err != nil {
		return TrialBalance{}, err
	}
	if err := q.Validate(); err != nil {
		return TrialBalance{}, err
	}
	key, err := s.cache.BuildKey(ctx, tenant.String(), q.cacheParts()...)
	if err != nil {
		return TrialBalance{}, fmt.Errorf("accounting/reports: cache key: %w", err)
	}
	value, err, _ := s.build(ctx, key, func(ctx context.Context) (any, error) {
		var tb TrialBalance
		hit, err := s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (any, error) {
			return s.load(ctx, tenant, q)
		})
		if err != nil {
			return nil, err
		}
		if s.metrics != nil && s.cache.Enabled() {
			s.metrics.ObserveReportCache(hit)
		}
		return tb, nil
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return value.(TrialBalance), nil
}

func (s *Service) load(ctx context.Context, tenant shared.Tenant, q Query) (TrialBalance, error) {
	rows, err := s.repo.TrialBalance(ctx, tenant, q)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(rows)
	tb.TenantID = tenant.ID()
	tb.FiscalYear = q.FiscalYear
	tb.Period = q.Period
	tb.GeneratedAt = s.now().UTC()
	return tb, nil
}

// build collapses concurrent identical builds while honouring caller cancellation.
func (s *Service) build(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	resultChan := s.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

// LedgerChanged invalidates the tenant's cached reports.
func (s *Service) LedgerChanged(ctx context.Context, tenant shared.Tenant) error {
	return s.cache.Bump(ctx, tenant.String())
}

// Tenants lists every tenant with a chart of accounts.
func (s *Service) Tenants(ctx context.Context) ([]shared.Tenant, error) {
	return s.repo.Tenants(ctx)
}

// CheckIntegrity compares materialized balances with totals recomputed from
// posted lines and checks the all-periods trial balance.
func (s *Service) CheckIntegrity(ctx context.Context, tenant shared.Tenant) (IntegrityReport, error) {
	if err := tenant.Require(); err != nil {
		return IntegrityReport{}, err
	}
	materialized, err := s.repo.MaterializedBalances(ctx, tenant)
	if err != nil {
		return IntegrityReport{}, err
	}
	recomputed, err := s.repo.PostedLineTotals(ctx, tenant)
	if err != nil {
		return IntegrityReport{}, err
	}
	rows, err := s.repo.TrialBalance(ctx, tenant, Query{})
	if err != nil {
		return IntegrityReport{}, err
	}
	tb := BuildTrialBalance(rows)
	return IntegrityReport{
		TenantID:    tenant.ID(),
		Drifts:      CompareBalances(materialized, recomputed),
		TotalDebit:  tb.TotalDebit,
		TotalCredit: tb.TotalCredit,
		Balanced:    tb.Balanced,
	}, nil
}
