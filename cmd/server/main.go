package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-service/config"
	"storefront-service/internal/access"
	"storefront-service/internal/api"
	"storefront-service/internal/broker"
	"storefront-service/internal/identity"
	"storefront-service/internal/inventory"
	"storefront-service/internal/models"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"
	"storefront-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront-service", cfg.Observ.JaegerEndpoint, cfg.Observ.TraceSampleRatio)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	paymentPolicy, err := models.ParsePaymentPolicy(cfg.Business.PaymentPolicy)
	if err != nil {
		logger.Fatal("Invalid PAYMENT_POLICY", zap.Error(err))
	}
	statusPolicy, err := models.ParseStatusPolicy(cfg.Business.OrderStatusPolicy)
	if err != nil {
		logger.Fatal("Invalid ORDER_STATUS_POLICY", zap.Error(err))
	}

	gate := access.NewDefaultGate()
	if cfg.Business.PermissionsFile != "" {
		gate, err = access.LoadGate(cfg.Business.PermissionsFile)
		if err != nil {
			logger.Fatal("Failed to load permissions", zap.Error(err))
		}
		logger.Info("Permissions loaded", zap.String("file", cfg.Business.PermissionsFile))
	}

	db, err := store.NewStore(cfg.Database.URL, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		TxMaxAttempts:   cfg.Business.TxMaxAttempts,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	ledger := inventory.NewLedger()
	services := api.Services{
		Accounts: service.NewAccountService(db, gate),
		Carts:    service.NewCartService(db, gate, cfg.Business.MaxLineQuantity),
		Checkout: service.NewCheckoutService(db, ledger, gate, redisClient, service.CheckoutOptions{
			PaymentPolicy:  paymentPolicy,
			IdempotencyTTL: cfg.Business.CheckoutIdempotencyTTL,
			LockTTL:        cfg.Business.CheckoutLockTTL,
		}),
		Orders:  service.NewOrderService(db, gate, statusPolicy),
		Catalog: service.NewCatalogService(db, ledger, gate),
	}
	identitySync := service.NewIdentitySync(db, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	relay := worker.NewOutboxRelay(db, producer, cfg.Business.OutboxBatchSize, cfg.Business.OutboxInterval)
	go func() {
		if err := relay.Run(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Outbox relay error", zap.Error(err))
		}
	}()

	accountConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
	accountWorker := worker.NewAccountWorker(accountConsumer, identitySync)
	go func() {
		if err := accountWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Account worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, redisClient)
	handler := api.NewHandler(services, verifier, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := accountWorker.Stop(); err != nil {
		logger.Error("Error stopping account worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
