// Command server wires the dependencies and runs the HTTP API. Business
// logic lives in the internal service packages; this file only assembles
// them. With DATABASE_URL unset the process runs fully in memory, which is
// what local development and the test suites use.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"expenseflow/internal/audit"
	auditmem "expenseflow/internal/audit/store/memory"
	auditpg "expenseflow/internal/audit/store/postgres"
	"expenseflow/internal/budget"
	budgetmem "expenseflow/internal/budget/store/memory"
	budgetpg "expenseflow/internal/budget/store/postgres"
	"expenseflow/internal/category"
	catcache "expenseflow/internal/category/cache"
	catmem "expenseflow/internal/category/store/memory"
	catpg "expenseflow/internal/category/store/postgres"
	dirmem "expenseflow/internal/directory/store/memory"
	dirpg "expenseflow/internal/directory/store/postgres"
	"expenseflow/internal/notification"
	"expenseflow/internal/platform/config"
	"expenseflow/internal/platform/httpserver"
	"expenseflow/internal/platform/logger"
	"expenseflow/internal/platform/postgres"
	platformredis "expenseflow/internal/platform/redis"
	"expenseflow/internal/request/metrics"
	"expenseflow/internal/request/service"
	reqmem "expenseflow/internal/request/store/memory"
	reqpg "expenseflow/internal/request/store/postgres"
	httptransport "expenseflow/internal/transport/http"
	"expenseflow/pkg/platform/middleware/auth"
	"expenseflow/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	var (
		requestStore   service.Store
		auditStore     audit.Store
		budgetStore    budget.Store
		categoryStore  category.Store
		employeeStore  interface {
			service.EmployeeDirectory
			category.EmployeeLister
			httptransport.EmployeeWriter
		}
		txRunner tx.Runner
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		requestStore = reqpg.New(db)
		auditStore = auditpg.New(db)
		budgetStore = budgetpg.New(db)
		categoryStore = catpg.New(db)
		employeeStore = dirpg.New(db)
		txRunner = tx.NewSQLRunner(db)
		log.Info("using postgres storage")
	} else {
		requestStore = reqmem.NewInMemoryStore()
		auditStore = auditmem.NewInMemoryStore()
		budgetStore = budgetmem.NewInMemoryStore()
		categoryStore = catmem.NewInMemoryStore()
		employeeStore = dirmem.NewInMemoryStore()
		txRunner = tx.NoopRunner{}
		log.Info("using in-memory storage")
	}

	chain, err := audit.NewChain(auditStore, audit.WithLogger(log))
	if err != nil {
		log.Error("failed to build audit chain", "error", err)
		os.Exit(1)
	}

	ledger, err := budget.NewLedger(budgetStore, budget.WithLogger(log))
	if err != nil {
		log.Error("failed to build budget ledger", "error", err)
		os.Exit(1)
	}

	catalogOpts := []category.Option{
		category.WithLogger(log),
		category.WithAuditChain(chain),
	}
	if cfg.RedisAddr != "" {
		client, err := platformredis.Open(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unreachable, catalog cache disabled", "error", err)
		} else {
			catalogOpts = append(catalogOpts, category.WithCache(
				catcache.NewRedis(client, config.CatalogCacheTTL, log)))
			defer client.Close()
		}
	}
	catalog, err := category.NewCatalog(categoryStore, ledger, employeeStore, catalogOpts...)
	if err != nil {
		log.Error("failed to build category catalog", "error", err)
		os.Exit(1)
	}

	notifier := notification.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, log)

	workflow, err := service.NewWorkflow(requestStore, catalog, ledger, employeeStore, chain, txRunner,
		service.WithLogger(log),
		service.WithNotifier(notifier),
		service.WithMetrics(metrics.New()),
	)
	if err != nil {
		log.Error("failed to build workflow", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(workflow, catalog, ledger, chain, employeeStore, log)
	verifier := auth.NewVerifier([]byte(cfg.JWTSigningKey), log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, verifier))

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(shutdownCtx)
	group.Go(func() error {
		log.Info("starting expenseflow", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(drainCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
