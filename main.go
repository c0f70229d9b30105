package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"personalbank/config"
	"personalbank/controllers"
	"personalbank/database"
	"personalbank/middleware"
	"personalbank/services"
	"personalbank/utils"
)

// initStore открывает хранилище согласно db.driver
func initStore(cfg *config.Config, logger *zap.Logger) (database.Store, error) {
	if cfg.DB.Driver == "memory" {
		logger.Warn("using in-memory store, data will be lost on exit")
		return database.NewMemoryStore(), nil
	}
	return database.Connect(cfg, logger)
}

// initNotifier собирает уведомления о проведенных операциях
func initNotifier(cfg *config.Config, logger *zap.Logger) (services.Notifier, func()) {
	var (
		notifiers services.MultiNotifier
		closers   []func()
	)

	if cfg.SMTP.Enabled {
		notifiers = append(notifiers, services.NewBreakerNotifier("email", services.NewEmailService(cfg), logger))
		logger.Info("email notifications enabled", zap.String("smtp_host", cfg.SMTP.Host))
	}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := services.NewEventPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			logger.Error("event publishing disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, services.NewBreakerNotifier("amqp", publisher, logger))
			closers = append(closers, func() {
				if err := publisher.Close(); err != nil {
					logger.Warn("failed to close event publisher", zap.Error(err))
				}
			})
			logger.Info("event publishing enabled", zap.String("exchange", cfg.RabbitMQ.Exchange))
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(notifiers) == 0 {
		return services.NopNotifier{}, closeAll
	}
	return notifiers, closeAll
}

// initRedis подключает отзыв токенов и блокировку сверки, если задан redis.addr.
// Без Redis оба механизма отключены.
func initRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (middleware.TokenRevoker, services.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return nil, nil, func() {}, nil
	}

	client, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))

	closeClient := func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return middleware.NewRedisRevoker(client), database.NewRedisLocker(client, 10*time.Minute), closeClient, nil
}

func newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer logger.Sync()

	store, err := initStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}

	minBalance, err := cfg.MinOpeningBalance()
	if err != nil {
		logger.Fatal("Ошибка конфигурации журнала", zap.Error(err))
	}

	notifier, closeNotifier := initNotifier(cfg, logger)
	ledger := services.NewLedgerService(store, notifier, logger.Named("ledger"), services.LedgerOptions{
		MinOpeningBalance:     minBalance,
		AccountNumberAttempts: cfg.Ledger.AccountNumberAttempts,
	})

	revoker, locker, closeRedis, err := initRedis(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к Redis", zap.Error(err))
	}

	reconciler := services.NewReconcileSchedulerService(store, logger.Named("reconcile"), cfg.Ledger.ReconcileSchedule)
	if locker != nil {
		reconciler.SetLocker(locker)
	}
	if err := reconciler.Start(); err != nil {
		logger.Fatal("Ошибка запуска сверки", zap.Error(err))
	}

	limiter := utils.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
	authController := controllers.NewAuthController(ledger, []byte(cfg.JWT.SecretKey), time.Duration(cfg.JWT.ExpiresIn)*time.Hour, revoker, logger)
	bankController := controllers.NewBankController(ledger, logger)

	api := newServer(cfg.Server.Port, controllers.NewRouter(authController, bankController, logger.Named("http"), limiter))
	ops := newServer(cfg.Server.OpsPort, controllers.NewOpsRouter(store, logger.Named("ops"), utils.NewRateLimiter(cfg.Server.RateLimit, time.Minute)))

	for _, srv := range []*http.Server{api, ops} {
		go func(srv *http.Server) {
			logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("server error", zap.String("addr", srv.Addr), zap.Error(err))
			}
		}(srv)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, srv := range []*http.Server{api, ops} {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}

	<-reconciler.Stop().Done()
	closeNotifier()
	closeRedis()

	if err := store.Close(); err != nil {
		logger.Error("failed to close store", zap.Error(err))
	}
	logger.Info("server stopped")
}
