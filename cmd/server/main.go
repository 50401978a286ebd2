package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/feria/internal/config"
	"github.com/mamadbah2/feria/internal/repository"
	"github.com/mamadbah2/feria/internal/repository/memory"
	"github.com/mamadbah2/feria/internal/repository/mongodb"
	"github.com/mamadbah2/feria/internal/repository/sqlite"
	"github.com/mamadbah2/feria/internal/scheduler"
	"github.com/mamadbah2/feria/internal/server/handlers"
	"github.com/mamadbah2/feria/internal/server/router"
	"github.com/mamadbah2/feria/internal/service/ledger"
	"github.com/mamadbah2/feria/internal/service/lifecycle"
	reportingsvc "github.com/mamadbah2/feria/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/feria/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/feria/pkg/clients/whatsapp"
	"github.com/mamadbah2/feria/pkg/logger"
	"github.com/mamadbah2/feria/pkg/metrics"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, closeStore := openStore(cfg, baseLogger)
	defer closeStore()

	queue, err := sqlite.Open(cfg.Queue.Path)
	if err != nil {
		baseLogger.Fatal("failed to open pending queue", zap.String("path", cfg.Queue.Path), zap.Error(err))
	}
	defer func() {
		if err := queue.Close(); err != nil {
			baseLogger.Error("failed to close pending queue", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	initial := ledger.Online
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		baseLogger.Warn("store unreachable at startup, starting offline", zap.Error(err))
		initial = ledger.Offline
	}
	cancelPing()

	saleLedger, err := ledger.New(context.Background(), store, queue,
		ledger.WithLogger(baseLogger.Named("svc.ledger")),
		ledger.WithMetrics(metrics.NewLedgerMetrics(registry)),
		ledger.WithConnectivity(initial))
	if err != nil {
		baseLogger.Fatal("failed to init sale ledger", zap.Error(err))
	}

	manager := lifecycle.NewManager(store,
		lifecycle.WithBatchSize(cfg.Lifecycle.BatchSize),
		lifecycle.WithLogger(baseLogger.Named("svc.lifecycle")),
		lifecycle.WithMetrics(metrics.NewLifecycleMetrics(registry)),
		lifecycle.WithSummarizer(reportingsvc.NewService(baseLogger.Named("svc.reporting"))),
		lifecycle.WithStateCache(queue.StateCache()))

	deps := scheduler.Deps{Store: store, Ledger: saleLedger, Reports: manager}
	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		deps.Notifier = whatsappsvc.NewMetaWhatsAppService(whatsClient, baseLogger.Named("svc.whatsapp"))
		deps.Recipient = cfg.WhatsApp.ReportRecipient
		baseLogger.Info("whatsapp report digest enabled")
	} else {
		baseLogger.Warn("whatsapp credentials missing, report digest disabled")
	}

	sched, err := scheduler.NewScheduler(cfg.Schedule, deps, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	salesHandler := handlers.NewSalesHandler(saleLedger, manager, baseLogger.Named("handlers.sales"))
	adminHandler := handlers.NewAdminHandler(manager, baseLogger.Named("handlers.admin"))
	engine := router.New(salesHandler, adminHandler, registry, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// openStore returns the configured store and its release func.
func openStore(cfg *config.Config, baseLogger *zap.Logger) (repository.Store, func()) {
	if cfg.Store.Driver == config.DriverMemory {
		baseLogger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), func() {}
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mongoRepo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("repo.mongodb"))
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	return mongoRepo, func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}
}
