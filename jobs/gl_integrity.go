package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrLedgerDrift reports that at least one tenant failed the integrity check.
var ErrLedgerDrift = errors.New("jobs: ledger integrity check found drift")

// IntegrityChecker is the read side the integrity job needs.
type IntegrityChecker interface {
	Tenants(ctx context.Context) ([]shared.Tenant, error)
	CheckIntegrity(ctx context.Context, tenant shared.Tenant) (reports.IntegrityReport, error)
}

// IntegrityJob verifies materialized balances against posted journal lines.
type IntegrityJob struct {
	checker IntegrityChecker
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	limit   int
}

// NewIntegrityJob constructs the integrity check. limit bounds concurrent tenants.
func NewIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics, limit int) *IntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 4
	}
	return &IntegrityJob{checker: checker, logger: logger, metrics: metrics, limit: limit}
}

// Handle processes TaskIntegrityCheck.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityCheckPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	var tenants []shared.Tenant
	if payload.TenantID != "" {
		tenant, err := shared.ParseTenant(payload.TenantID)
		if err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		tenants = []shared.Tenant{tenant}
	}
	_, err := j.Run(ctx, tenants...)
	return err
}

// Run checks the given tenants, or every tenant when none are given. It
// returns ErrLedgerDrift when any report is not OK.
func (j *IntegrityJob) Run(ctx context.Context, tenants ...shared.Tenant) (results []reports.IntegrityReport, err error) {
	tracker := j.metrics.Track(TaskIntegrityCheck)
	defer func() { err = tracker.End(err) }()

	if len(tenants) == 0 {
		tenants, err = j.checker.Tenants(ctx)
		if err != nil {
			return nil, fmt.Errorf("jobs: list tenants: %w", err)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.limit)
	for _, tenant := range tenants {
		g.Go(func() error {
			report, err := j.checker.CheckIntegrity(gctx, tenant)
			if err != nil {
				return fmt.Errorf("jobs: check tenant %s: %w", tenant, err)
			}
			j.record(tenant, report)
			mu.Lock()
			results = append(results, report)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	failed := 0
	for _, report := range results {
		if !report.OK() {
			failed++
		}
	}
	j.logger.Info("ledger integrity check executed", slog.String("job", TaskIntegrityCheck),
		slog.Int("tenants", len(tenants)), slog.Int("failed", failed))
	if failed > 0 {
		return results, fmt.Errorf("%w: %d tenant(s)", ErrLedgerDrift, failed)
	}
	return results, nil
}

func (j *IntegrityJob) record(tenant shared.Tenant, report reports.IntegrityReport) {
	for _, d := range report.Drifts {
		j.logger.Warn("ledger balance drift",
			slog.String("tenant", tenant.String()),
			slog.Int64("account_id", d.Key.AccountID),
			slog.Int("fiscal_year", d.Key.FiscalYear),
			slog.Int("period", d.Key.Period),
			slog.String("expected_debit", d.ExpectedDebit.String()),
			slog.String("actual_debit", d.ActualDebit.String()),
			slog.String("expected_credit", d.ExpectedCredit.String()),
			slog.String("actual_credit", d.ActualCredit.String()))
	}
	j.metrics.AddDrift(tenant.String(), len(report.Drifts))
	if !report.Balanced {
		j.logger.Error("trial balance out of balance",
			slog.String("tenant", tenant.String()),
			slog.String("total_debit", report.TotalDebit.String()),
			slog.String("total_credit", report.TotalCredit.String()))
	}
}
