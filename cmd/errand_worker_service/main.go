package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/municipio/support-management/internal/errand_service/adapters/conversationexchange"
	"github.com/municipio/support-management/internal/errand_service/adapters/emailreader"
	"github.com/municipio/support-management/internal/errand_service/adapters/employee"
	"github.com/municipio/support-management/internal/errand_service/adapters/messaging"
	"github.com/municipio/support-management/internal/errand_service/adapters/relations"
	"github.com/municipio/support-management/internal/errand_service/adapters/webmessagecollector"
	"github.com/municipio/support-management/internal/errand_service/app"
	"github.com/municipio/support-management/internal/errand_service/domain"
	"github.com/municipio/support-management/internal/errand_service/repository/postgres"
	"github.com/municipio/support-management/internal/platform/config"
	"github.com/municipio/support-management/internal/platform/database"
	"github.com/municipio/support-management/internal/platform/logger"
	"github.com/municipio/support-management/internal/platform/messagebroker"
	"github.com/municipio/support-management/internal/platform/scheduler"
)

const serviceName = "errand_worker_service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(appLogger)
	appLogger.Info("Starting errand worker service",
		"namespace", cfg.Namespace, "municipality_id", cfg.MunicipalityID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, appLogger, serviceName)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	emailClient := emailreader.NewClient(appLogger, cfg.EmailReaderBaseURL, httpClient)
	webMessageClient := webmessagecollector.NewClient(appLogger, cfg.WebMessageCollectorBaseURL, httpClient)
	conversationClient := conversationexchange.NewClient(appLogger, cfg.ConversationExchangeBaseURL, httpClient)
	relationsClient := relations.NewClient(appLogger, cfg.RelationsBaseURL, httpClient)
	messagingClient := messaging.NewClient(appLogger, cfg.MessagingBaseURL, cfg.MessagingSenderAddress, httpClient)
	employeeClient := employee.NewClient(appLogger, cfg.EmployeeBaseURL, httpClient)

	// Pool-level stores serve reads outside item transactions; workers get a
	// TxRunner for their per-item units of work.
	stores := postgres.NewStores(dbPool, appLogger)
	txRunner := postgres.NewPgTxRunner(dbPool, appLogger)
	numberGen := postgres.NewPgErrandNumberGenerator(dbPool, appLogger)

	ledger := domain.NewStateLedger(appLogger)
	matcher := app.NewMatcher(cfg.Namespace, cfg.MunicipalityID, relationsClient, appLogger)
	healthRegistry := app.NewHealthRegistry()
	graceWindow := time.Duration(cfg.ReactivationGraceDays) * 24 * time.Hour

	emailWorker := app.NewEmailIngestWorker(
		cfg.Namespace, cfg.MunicipalityID, cfg.NamespaceShortcode, graceWindow,
		emailClient, messagingClient, matcher, ledger, numberGen,
		txRunner, natsClient, healthRegistry.Register("email_ingest"), appLogger,
	)
	webMessageWorker := app.NewWebMessageIngestWorker(
		cfg.Namespace, cfg.MunicipalityID, cfg.WebMessageFamilyIDs, cfg.WebMessageInstance, graceWindow,
		webMessageClient, matcher, ledger,
		txRunner, natsClient, healthRegistry.Register("webmessage_ingest"), appLogger,
	)
	conversationWorker := app.NewConversationSyncWorker(
		cfg.ConversationPageSize, conversationClient, matcher, stores.Cursors,
		txRunner, healthRegistry.Register("conversation_sync"), appLogger,
	)
	suspensionWorker := app.NewSuspensionExpiryWorker(
		cfg.Namespace, cfg.MunicipalityID, stores.Errands, employeeClient, ledger,
		txRunner, natsClient, healthRegistry.Register("suspension_expiry"), appLogger,
	)
	retentionWorker := app.NewNotificationRetentionWorker(
		stores.Notifications, healthRegistry.Register("notification_retention"), appLogger,
	)

	sched := scheduler.New(scheduler.NewPgLockRepository(dbPool, appLogger), appLogger)
	jobs := []scheduler.Job{
		{Name: "email_ingest", CronSpec: cfg.EmailWorker.Cron, LockMaxHold: cfg.EmailWorker.LockMaxHold, MaxExecution: cfg.EmailWorker.MaxExecution, Run: emailWorker.Run},
		{Name: "webmessage_ingest", CronSpec: cfg.WebMessageWorker.Cron, LockMaxHold: cfg.WebMessageWorker.LockMaxHold, MaxExecution: cfg.WebMessageWorker.MaxExecution, Run: webMessageWorker.Run},
		{Name: "conversation_sync", CronSpec: cfg.ConversationSyncWorker.Cron, LockMaxHold: cfg.ConversationSyncWorker.LockMaxHold, MaxExecution: cfg.ConversationSyncWorker.MaxExecution, Run: conversationWorker.Run},
		{Name: "suspension_expiry", CronSpec: cfg.SuspensionWorker.Cron, LockMaxHold: cfg.SuspensionWorker.LockMaxHold, MaxExecution: cfg.SuspensionWorker.MaxExecution, Run: suspensionWorker.Run},
		{Name: "notification_retention", CronSpec: cfg.NotificationRetentionWorker.Cron, LockMaxHold: cfg.NotificationRetentionWorker.LockMaxHold, MaxExecution: cfg.NotificationRetentionWorker.MaxExecution, Run: retentionWorker.Run},
	}
	for _, job := range jobs {
		if err := sched.Register(job); err != nil {
			appLogger.Error("Failed to register scheduled job", "job", job.Name, "error", err)
			os.Exit(1)
		}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", healthRegistry.Handler())
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("Scheduler starting", "jobs", len(jobs))
		sched.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Errand worker service stopped")
}
