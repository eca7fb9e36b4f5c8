package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"stockwright/internal/catalog"
	"stockwright/internal/config"
	"stockwright/internal/db"
	"stockwright/internal/db/mock"
	"stockwright/internal/feasibility"
	"stockwright/internal/handlers"
	applog "stockwright/internal/log"
	"stockwright/internal/report"
	"stockwright/internal/scheduler"
	"stockwright/internal/server"
	"stockwright/internal/stock"
	"stockwright/internal/store"
	"stockwright/internal/store/gormstore"
	"stockwright/internal/store/memory"
	"stockwright/internal/workorder"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

type recomputeScheduler interface {
	Start() error
	Stop(ctx context.Context)
}

var (
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	newServerFunc       = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	newSchedulerFunc = func(spec string, job scheduler.Job, timeout time.Duration) (recomputeScheduler, error) {
		return scheduler.New(spec, job, timeout)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "level", cfg.Logging.Level, "error", err)
		return 1
	}

	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		applog.Error(ctx, "failed to open store", "error", err)
		return 1
	}
	defer closeStore()

	services := buildServices(st, cfg.Database.StoreTimeout)

	if cfg.Recompute.Schedule != "" {
		sched, err := newSchedulerFunc(cfg.Recompute.Schedule, services.Recomputer, cfg.Recompute.Timeout)
		if err != nil {
			applog.Error(ctx, "invalid recompute schedule", "error", err)
			return 1
		}
		if err := sched.Start(); err != nil {
			applog.Error(ctx, "failed to start recompute scheduler", "error", err)
			return 1
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	srv, err := newServerFunc(server.Config{
		Addr:           cfg.Server.Addr,
		Services:       services,
		MetricsEnabled: cfg.Metrics.Enabled,
	})
	if err != nil {
		applog.Error(ctx, "failed to build server", "error", err)
		return 1
	}

	sigCh, unsubscribe := subscribeShutdownSig()
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	case <-ctx.Done():
		applog.Info(ctx, "shutting down http server", "reason", ctx.Err())
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		applog.Error(ctx, "server exited with error", "error", err)
		return 1
	}
	return 0
}

// openStore picks the backing store: the seeded mock database, the configured
// database, or the in-memory store when no URL is set.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	var (
		gdb *gorm.DB
		err error
	)
	switch {
	case cfg.UseMock:
		applog.Info(ctx, "using mock database")
		gdb, err = newMockDatabaseFunc(ctx)
	case strings.TrimSpace(cfg.URL) != "":
		applog.Info(ctx, "connecting to database", "driver", cfg.Driver)
		gdb, err = configureDatabase(cfg)
	default:
		applog.Warn(ctx, "DATABASE_URL not set; using in-memory store, data is lost on exit")
		s := memory.New()
		return s, func() { _ = s.Close() }, nil
	}
	if err != nil {
		return nil, nil, err
	}

	s := gormstore.New(gdb)
	return s, func() {
		if err := s.Close(); err != nil {
			applog.Error(ctx, "failed to close database", "error", err)
		}
	}, nil
}

func buildServices(s store.Store, timeout time.Duration) *handlers.Services {
	calc := stock.NewCalculator(s, timeout)
	engine := feasibility.NewEngine(s, calc, timeout)
	return &handlers.Services{
		Store:       s,
		Catalog:     catalog.NewService(s, timeout),
		Calculator:  calc,
		Ledger:      stock.NewLedger(s, calc, timeout),
		Recomputer:  stock.NewRecomputer(s, calc, timeout),
		Feasibility: engine,
		WorkOrders:  workorder.NewService(s, engine, calc, timeout),
		Reports:     report.NewBuilder(s, calc, timeout),
	}
}
