package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coopledger/coopledger/internal/adapter/publisher"
	"github.com/coopledger/coopledger/internal/adapter/repository/sqlstore"
	"github.com/coopledger/coopledger/internal/config"
	"github.com/coopledger/coopledger/internal/domain"
	"github.com/coopledger/coopledger/internal/logging"
	"github.com/coopledger/coopledger/internal/metrics"
	"github.com/coopledger/coopledger/internal/usecase/balance"
	"github.com/coopledger/coopledger/internal/usecase/capital"
	"github.com/coopledger/coopledger/internal/usecase/ledger"
	"github.com/coopledger/coopledger/internal/usecase/period"
	"github.com/coopledger/coopledger/internal/usecase/report"
	"github.com/coopledger/coopledger/internal/usecase/seeder"
)

// app wires the engine together for one command invocation: configuration
// and policy, the store, and the services on top of it.
type app struct {
	cfg     *config.Config
	policy  *config.Policy
	logger  *slog.Logger
	store   domain.Store
	metrics *metrics.PrometheusRecorder

	ledger  *ledger.LedgerService
	balance *balance.BalanceService
	capital *capital.CapitalService
	periods *period.PeriodService
	reports *report.ReportService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.Init("coopledger", cfg.LogLevel, cfg.AppEnv)

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("loading policy %s: %w", cfg.PolicyPath, err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	// The system chart is idempotent to seed, so every invocation makes
	// sure it is in place.
	if err := seeder.NewChartSeeder(store.Accounts()).Seed(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("seeding chart of accounts: %w", err)
	}

	recorder := metrics.NewPrometheusRecorder("coopledger")
	if cfg.MetricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, recorder.Handler()); err != nil {
				logger.Warn("metrics endpoint stopped", "error", err)
			}
		}()
	}

	events := publisher.NewLog(logger)

	balanceService := balance.NewBalanceService(store.Accounts(), store.Transactions(), store.Periods(), store.Snapshots())
	ledgerService := ledger.NewLedgerService(store.Accounts(), store.Transactions(), store.Periods(), store.Faults())
	ledgerService.Checker = balanceService
	ledgerService.Balances = balanceService
	ledgerService.Publisher = events
	ledgerService.Metrics = recorder

	capitalService := capital.NewCapitalService(
		store.Members(), store.Capital(), store.Accounts(), store.Transactions(),
		ledgerService, balanceService, policy.Tax,
	)
	periodService := period.NewPeriodService(store, ledgerService, balanceService, policy)
	periodService.Publisher = events
	periodService.Metrics = recorder
	reportService := report.NewReportService(store, balanceService)

	return &app{
		cfg:     cfg,
		policy:  policy,
		logger:  logger,
		store:   store,
		metrics: recorder,
		ledger:  ledgerService,
		balance: balanceService,
		capital: capitalService,
		periods: periodService,
		reports: reportService,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

func openStore(cfg *config.Config) (*sqlstore.Store, error) {
	store, err := sqlstore.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseDriver == sqlstore.DriverPostgres {
		db := store.DB()
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	}
	return store, nil
}

// resolvePeriod accepts either a period name or a period id.
func (a *app) resolvePeriod(ctx context.Context, arg string) (*domain.Period, error) {
	if id, err := uuid.Parse(arg); err == nil {
		return a.store.Periods().GetByID(ctx, id)
	}
	return a.store.Periods().GetByName(ctx, arg)
}
