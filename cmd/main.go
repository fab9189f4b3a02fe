package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "orderbridge/docs"
	"orderbridge/internal/caching"
	"orderbridge/internal/config"
	"orderbridge/internal/handlers"
	"orderbridge/internal/jobs"
	"orderbridge/internal/jobs/background"
	"orderbridge/internal/ledger"
	"orderbridge/internal/logger"
	"orderbridge/internal/metrics"
	"orderbridge/internal/middleware"
	"orderbridge/internal/realtime"
	"orderbridge/internal/repositories"
	"orderbridge/internal/services"
	"orderbridge/internal/storage"
	"orderbridge/pkg/database"
)

const version = "1.0.0"

// @title orderbridge API
// @version 1.0
// @description Order integration between the ordering platform and the external ledger.
// @BasePath /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configPath := os.Getenv("ORDERBRIDGE_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("orderbridge stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database.URL, database.PoolOptions{}, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := metrics.New("orderbridge")

	// Repositories
	orderRepo := repositories.NewOrderRepo(pool)
	companyRepo := repositories.NewCompanyRepo(pool)
	userRepo := repositories.NewUserRepo(pool)
	mappingRepo := repositories.NewMappingRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)
	auditLogsRepo := repositories.NewAuditLogsRepo(pool)

	// Redis backs the mapping cache, the realtime bus and the task queue
	redisClient := caching.NewRedisClient(cfg.Queue.RedisAddr, cfg.Queue.RedisPassword, cfg.Queue.RedisDB, log)
	defer redisClient.Close()
	mappingCache := caching.NewRedisCacheService(redisClient, cfg.Realtime.ChannelPrefix)

	hub := realtime.NewHub(log, m)
	bus, err := newBus(cfg, redisClient, hub, log)
	if err != nil {
		return err
	}
	defer bus.Close()
	go func() {
		if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("realtime bus stopped", zap.Error(err))
		}
	}()
	broadcaster := realtime.NewBroadcaster(bus, log)

	auditSink := services.NewDatabaseAuditSink(auditLogsRepo)
	if cfg.Audit.Sink == "kafka" {
		kafkaSink := services.NewKafkaAuditSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		defer kafkaSink.Close()
		auditSink = kafkaSink
	}
	auditor := services.NewAuditor(auditSink, log)

	// Ledger
	connector := ledger.NewDedicatedConnector(cfg.Ledger.Driver, cfg.Ledger.DSN, cfg.LedgerConnectTimeout(), cfg.LedgerCommandTimeout())
	composer := ledger.NewComposer(cfg.Ledger.Schema)

	archive := storage.NewDiscardArchive()
	if cfg.Archive.Enabled {
		minioArchive, err := storage.NewMinioArchive(cfg.Archive.Endpoint, cfg.Archive.AccessKey, cfg.Archive.SecretKey, cfg.Archive.UseSSL, cfg.Archive.Bucket)
		if err != nil {
			return fmt.Errorf("failed to initialize export archive: %w", err)
		}
		if err := minioArchive.EnsureBucketExists(ctx); err != nil {
			return fmt.Errorf("failed to prepare export archive: %w", err)
		}
		archive = minioArchive
	}

	// Services and jobs
	mappingSvc := services.NewMappingService(mappingRepo, mappingCache, cfg.MappingCacheTTL(), connector, composer, auditor, log)
	notificationSvc := services.NewNotificationService(notificationRepo, broadcaster)
	announcer := services.NewStatusAnnouncer(userRepo, notificationSvc, broadcaster, auditor, log)
	auditLogsSvc := services.NewAuditLogsService(auditLogsRepo)

	numbers := jobs.NewOrderNumberGenerator(m, log)
	exporter := jobs.NewLedgerExporter(orderRepo, companyRepo, mappingSvc, connector, composer, numbers, archive, m,
		*cfg.Ledger.TransactionalExport, log)
	reconciler := jobs.NewLedgerReconciler(orderRepo, mappingSvc, connector, composer, announcer, m, log)
	orderSvc := services.NewOrderService(orderRepo, exporter, announcer, broadcaster, auditor, m, cfg.LockTTL(), log)

	scheduler, err := background.NewJobScheduler(reconciler, orderSvc, background.Options{
		SyncEnabled:   cfg.Sync.Enabled,
		SyncInterval:  time.Duration(cfg.Sync.IntervalMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Locks.SweepIntervalSeconds) * time.Second,
	}, log)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			log.Warn("scheduler shutdown failed", zap.Error(err))
		}
	}()

	redisOpt := asynq.RedisClientOpt{Addr: cfg.Queue.RedisAddr, Password: cfg.Queue.RedisPassword, DB: cfg.Queue.RedisDB}
	queueServer := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Queues:      cfg.Queue.QueuePriorities,
		Logger:      log.Named("asynq").Sugar(),
	})
	mux := asynq.NewServeMux()
	jobs.NewTaskHandlers(reconciler, log).Register(mux)
	if err := queueServer.Start(mux); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}
	defer queueServer.Shutdown()

	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// JWT
	var jwks middleware.JWKS
	if cfg.Auth.JWKSURL != "" {
		jwks, err = middleware.NewJWKS(cfg.Auth.JWKSURL, log)
		if err != nil {
			return fmt.Errorf("failed to load JWKS: %w", err)
		}
		defer jwks.EndBackground()
	} else if cfg.Auth.JWTSecret == "" {
		return errors.New("either auth.jwt_secret or auth.jwks_url is required")
	}
	jwtConfig := middleware.JWTConfig(middleware.JWTOptions{Secret: cfg.Auth.JWTSecret, JWKSURL: cfg.Auth.JWKSURL}, jwks)

	// Handlers
	healthHandlers := handlers.NewHealthHandlers(pool, handlers.PingFunc(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}), connector, version)
	orderHandlers := handlers.NewOrderHandlers(orderSvc)
	mappingHandlers := handlers.NewMappingHandlers(mappingSvc)
	ledgerHandlers := handlers.NewLedgerHandlers(mappingSvc, reconciler, queueClient)
	jobHandlers := handlers.NewJobHandlers(scheduler)
	notificationHandlers := handlers.NewNotificationHandlers(notificationSvc)
	auditLogsHandlers := handlers.NewAuditLogsHandlers(auditLogsSvc)
	realtimeHandlers := handlers.NewRealtimeHandlers(hub, orderSvc, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(logger.RequestLogger(log))
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	versionMiddleware := middleware.NewVersionMiddleware()
	e.Use(versionMiddleware.APIVersionResolver())

	// Unauthenticated
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/v1")
	v1.Use(versionMiddleware.VersionHeader("v1"))
	v1.Use(echojwt.WithConfig(jwtConfig))
	v1.Use(middleware.RequireIdentity())

	operator := middleware.RequireOperator()
	admin := middleware.RequireAdmin()

	v1.GET("/mappings", mappingHandlers.ListMappings)
	v1.GET("/mappings/:type/resolve", mappingHandlers.ResolveMapping)
	v1.PUT("/mappings/:type", mappingHandlers.UpsertMapping, admin)
	v1.DELETE("/mappings/:id", mappingHandlers.RemoveMapping, admin)

	v1.GET("/ledger/tables", ledgerHandlers.ListTables, operator)
	v1.GET("/ledger/tables/:table/columns", ledgerHandlers.ListColumns, operator)
	v1.POST("/ledger/preview", ledgerHandlers.Preview, admin)
	v1.POST("/ledger/sync", ledgerHandlers.Sync, operator)
	v1.GET("/jobs", jobHandlers.ListJobs, operator)

	v1.POST("/orders", orderHandlers.CreateOrder)
	v1.GET("/orders", orderHandlers.ListOrders)
	v1.POST("/orders/locks/cleanup", orderHandlers.CleanupLocks, operator)
	v1.GET("/orders/:id", orderHandlers.GetOrder)
	v1.PUT("/orders/:id/items", orderHandlers.ReplaceItems)
	v1.DELETE("/orders/:id", orderHandlers.DeleteOrder, admin)
	v1.POST("/orders/:id/status", orderHandlers.ChangeStatus)
	v1.POST("/orders/:id/export", orderHandlers.ExportOrder, operator)
	v1.POST("/orders/:id/ship", orderHandlers.ShipOrder, operator)
	v1.POST("/orders/:id/editing", orderHandlers.SetEditing)

	v1.GET("/notifications", notificationHandlers.ListNotifications)
	v1.POST("/notifications/:id/read", notificationHandlers.MarkRead)
	v1.GET("/audit-logs", auditLogsHandlers.ListAuditLogs, operator)

	v1.GET("/ws", realtimeHandlers.Connect)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("orderbridge starting",
			zap.String("version", version),
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.String("realtime_bus", cfg.Realtime.Bus),
			zap.Bool("transactional_export", *cfg.Ledger.TransactionalExport))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newBus(cfg *config.Config, client *redis.Client, hub *realtime.Hub, log *zap.Logger) (realtime.Bus, error) {
	switch cfg.Realtime.Bus {
	case "nats":
		bus, err := realtime.NewNATSBus(cfg.Realtime.NATSURL, cfg.Realtime.ChannelPrefix, hub, log)
		if err != nil {
			return nil, fmt.Errorf("failed to connect realtime bus: %w", err)
		}
		return bus, nil
	case "local":
		return realtime.NewLocalBus(hub), nil
	default:
		return realtime.NewRedisBus(client, cfg.Realtime.ChannelPrefix, hub, log), nil
	}
}
