package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// IntegrityOptions defines available flags for the integrity command.
type IntegrityOptions struct {
	Tenant      string
	Parallelism int
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// IntegritySummary describes the JSON response for the integrity command.
type IntegritySummary struct {
	OK      bool                      `json:"ok"`
	Tenants []reports.IntegrityReport `json:"tenants"`
}

// IntegrityCLI runs the ledger integrity check in the foreground.
type IntegrityCLI struct {
	checker jobs.IntegrityChecker
}

// NewIntegrityCLI wraps the checker used by the command.
func NewIntegrityCLI(checker jobs.IntegrityChecker) (*IntegrityCLI, error) {
	if checker == nil {
		return nil, errors.New("integrity cli: checker required")
	}
	return &IntegrityCLI{checker: checker}, nil
}

// CheckCommand verifies materialized balances and prints the outcome. It
// returns 0 when every tenant is clean, 10 on drift and 1 on failure.
func (c *IntegrityCLI) CheckCommand(ctx context.Context, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	var tenants []shared.Tenant
	if raw := strings.TrimSpace(opts.Tenant); raw != "" {
		tenant, err := shared.ParseTenant(raw)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: invalid tenant %q\n", opts.Tenant)
			return 1
		}
		tenants = append(tenants, tenant)
	}

	job := jobs.NewIntegrityJob(c.checker, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, opts.Parallelism)
	results, err := job.Run(ctx, tenants...)
	drift := errors.Is(err, jobs.ErrLedgerDrift)
	if err != nil && !drift {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: %v\n", err)
		return 1
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].TenantID.String() < results[j].TenantID.String()
	})

	if opts.JSONOutput {
		if results == nil {
			results = []reports.IntegrityReport{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(IntegritySummary{OK: !drift, Tenants: results}); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrityHuman(opts.Stdout, results)
	}
	if drift {
		return 10
	}
	return 0
}

func renderIntegrityHuman(out io.Writer, results []reports.IntegrityReport) {
	_, _ = fmt.Fprintf(out, "Ledger integrity for %d tenant(s)\n", len(results))
	for _, r := range results {
		if r.OK() {
			_, _ = fmt.Fprintf(out, " - %s ok (debit %s, credit %s)\n", r.TenantID, r.TotalDebit.StringFixed(2), r.TotalCredit.StringFixed(2))
			continue
		}
		_, _ = fmt.Fprintf(out, " - %s FAILED", r.TenantID)
		if !r.Balanced {
			_, _ = fmt.Fprintf(out, " unbalanced (debit %s, credit %s)", r.TotalDebit.StringFixed(2), r.TotalCredit.StringFixed(2))
		}
		_, _ = fmt.Fprintf(out, " %d drift(s)\n", len(r.Drifts))
		for _, d := range r.Drifts {
			_, _ = fmt.Fprintf(out, "   account %d %d/%02d: debit %s vs %s, credit %s vs %s\n",
				d.Key.AccountID, d.Key.FiscalYear, d.Key.Period,
				d.ActualDebit.StringFixed(2), d.ExpectedDebit.StringFixed(2),
				d.ActualCredit.StringFixed(2), d.ExpectedCredit.StringFixed(2))
		}
	}
}
