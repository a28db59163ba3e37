// Package app wires the ledger, its backend and the services on top of it.
// Both binaries construct exactly one App at start and Close it on exit.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/config"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger/sqlstore"
	"github.com/jmerrifield20/SupplyChainLedger/internal/query"
	"github.com/jmerrifield20/SupplyChainLedger/internal/tracking"
)

// App is the constructed ledger and the services that read and write it.
type App struct {
	Store    *ledger.Store
	Tracking *tracking.Service
	Query    *query.Engine
}

// OpenBackend returns the persistence backend selected by cfg.
func OpenBackend(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ledger.Backend, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return ledger.NewFileBackend(cfg.Path), nil
	case config.DriverMemory:
		return ledger.NewMemoryBackend(), nil
	case config.DriverSQLite, config.DriverPostgres:
		dialect, err := sqlstore.ParseDialect(cfg.Driver)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(ctx, dialect, cfg.DSN, logger)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// Open builds the backend, initialises the ledger and logs how the chain was
// obtained. A recovered (reinitialised) ledger is logged as an error so it is
// never silent.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	backend, err := OpenBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Storage.Driver, err)
	}

	store, err := ledger.Open(ctx, backend,
		ledger.WithRecoveryPolicy(cfg.RecoveryPolicy()),
		ledger.WithLogger(logger),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}

	report := store.InitReport()
	fields := []zap.Field{
		zap.String("driver", cfg.Storage.Driver),
		zap.String("outcome", string(report.Outcome)),
		zap.Int("records", report.Records),
		zap.String("head", store.Head()),
	}
	switch report.Outcome {
	case ledger.OutcomeRecovered:
		logger.Error("ledger was malformed and has been reinitialised",
			append(fields, zap.String("quarantined_to", report.QuarantinedTo), zap.Error(report.Warning))...)
	default:
		logger.Info("ledger ready", fields...)
	}

	return &App{
		Store: store,
		Tracking: tracking.New(store,
			tracking.WithTransitions(cfg.Tracking.EnforceTransitions),
			tracking.WithLogger(logger),
		),
		Query: query.New(store),
	}, nil
}

// Close flushes and closes the ledger backend.
func (a *App) Close() error {
	return a.Store.Close()
}
