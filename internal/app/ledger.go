package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/sqlite"
)

// Ledger bundles the wired ledger services for one storage backend.
type Ledger struct {
	Accounts  *accounts.Service
	Journals  *journals.Service
	Reports   *reports.Service
	Producers *integration.Producers

	ping    func(ctx context.Context) error
	closers []func()
}

type repositories struct {
	accounts accounts.Repository
	journals journals.Repository
	reports  reports.Repository
	audit    journals.AuditPort
}

// OpenLedger connects the configured backend and wires the services on top of
// it. metrics may be nil. A Redis outage disables the report cache instead of
// failing startup.
func OpenLedger(ctx context.Context, cfg *Config, logger *slog.Logger, metrics *observability.Metrics) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{}
	repos, err := l.openStore(ctx, cfg)
	if err != nil {
		l.Close()
		return nil, err
	}

	var reportCache *cache.Versioned
	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.CacheOptions())
		if err != nil {
			logger.Warn("report cache disabled", slog.Any("error", err))
		} else {
			l.closers = append(l.closers, func() {
				if err := client.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			})
			reportCache = cache.NewVersioned(client, cfg.ReportCacheTTL)
		}
	}

	l.Accounts = accounts.NewService(repos.accounts)
	l.Reports = reports.NewService(repos.reports, reportCache)
	l.Journals = journals.NewService(repos.journals, journals.NewValidator(l.Accounts), balances.NewAggregator(), repos.audit, logger)
	l.Journals.AddObserver(l.Reports)
	if metrics != nil {
		l.Journals.WithMetrics(metrics)
		l.Reports.WithMetrics(metrics)
	}
	l.Producers = integration.NewProducers(l.Journals, l.Accounts, cfg.Posting.Accounts(), logger)
	l.Producers.WithRetry(cfg.Posting.RetryInitial, cfg.Posting.RetryMaxElapsed)
	return l, nil
}

func (l *Ledger) openStore(ctx context.Context, cfg *Config) (repositories, error) {
	switch cfg.DBDriver {
	case DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return repositories{}, err
		}
		l.ping = store.Ping
		l.closers = append(l.closers, func() { _ = store.Close() })
		return repositories{
			accounts: store.Accounts(),
			journals: store.Journals(),
			reports:  store.Reports(),
			audit:    store,
		}, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, 0)
		if err != nil {
			return repositories{}, err
		}
		l.ping = pool.Ping
		l.closers = append(l.closers, pool.Close)
		if err := db.Migrate(ctx, pool); err != nil {
			return repositories{}, err
		}
		return repositories{
			accounts: accounts.NewRepository(pool),
			journals: journals.NewRepository(pool),
			reports:  reports.NewRepository(pool),
			audit:    shared.NewAuditLogger(pool),
		}, nil
	default:
		return repositories{}, fmt.Errorf("app: unsupported driver %q", cfg.DBDriver)
	}
}

// Ping reports storage health.
func (l *Ledger) Ping(ctx context.Context) error {
	if l == nil || l.ping == nil {
		return nil
	}
	return l.ping(ctx)
}

// Close releases connections in reverse order of acquisition.
func (l *Ledger) Close() {
	if l == nil {
		return
	}
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
	l.closers = nil
}
