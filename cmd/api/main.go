package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/northcart/api/internal/handlers"
	"github.com/northcart/api/internal/platform/auth"
	"github.com/northcart/api/internal/platform/config"
	"github.com/northcart/api/internal/platform/idempotency"
	"github.com/northcart/api/internal/platform/observability"
	"github.com/northcart/api/internal/repositories/postgres"
	"github.com/northcart/api/internal/services"
)

const idempotencyCleanupInterval = time.Hour

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("database close error", zap.Error(err))
		}
	}()

	if err := postgres.RunMigrations(db, cfg.Database); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	unitOfWork, err := postgres.NewUnitOfWork(db)
	if err != nil {
		logger.Fatal("failed to initialise unit of work", zap.Error(err))
	}
	productRepo, err := postgres.NewProductRepository(db)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	orderRepo, err := postgres.NewOrderRepository(db)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	invoiceRepo, err := postgres.NewInvoiceRepository(db)
	if err != nil {
		logger.Fatal("failed to initialise invoice repository", zap.Error(err))
	}
	userRepo, err := postgres.NewUserRepository(db)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	eventLogger := observability.EventLogger(logger)

	guestService, err := services.NewGuestService(services.GuestServiceDeps{
		Users:  userRepo,
		Logger: eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise guest service", zap.Error(err))
	}

	invoiceService, err := services.NewInvoiceService(services.InvoiceServiceDeps{
		Invoices: invoiceRepo,
		Logger:   eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise invoice service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:             orderRepo,
		Products:           productRepo,
		Invoices:           invoiceRepo,
		Invoicer:           invoiceService,
		Guests:             guestService,
		UnitOfWork:         unitOfWork,
		TaxRateBasisPoints: cfg.Checkout.TaxRateBasisPoints,
		Logger:             eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, auth.WithTokenTTL(cfg.Auth.TokenTTL))
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	idempotencyStore := idempotency.NewMemoryStore()

	cleanupCtx, cleanupCancel := context.WithCancel(ctx)
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		ticker := time.NewTicker(idempotencyCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case now := <-ticker.C:
				if removed, err := idempotencyStore.CleanupExpired(cleanupCtx, now, 0); err != nil {
					logger.Warn("idempotency cleanup error", zap.Error(err))
				} else if removed > 0 {
					logger.Info("idempotency records expired", zap.Int("removed", removed))
				}
			}
		}
	}()

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			auth.Middleware(authenticator),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthDatabase(db),
		)),
		handlers.WithOrderMiddlewares(idempotency.Middleware(
			idempotencyStore,
			idempotency.WithTTL(cfg.Checkout.IdempotencyTTL),
			idempotency.WithLogger(logger.Named("idempotency")),
		)),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(orderService).Routes),
		handlers.WithInvoiceRoutes(handlers.NewInvoiceHandlers(invoiceService).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("northcart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
