package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/belgrano/ticketera/internal/api/http"
	"github.com/belgrano/ticketera/internal/api/http/handlers"
	"github.com/belgrano/ticketera/internal/auth"
	"github.com/belgrano/ticketera/internal/config"
	"github.com/belgrano/ticketera/internal/events"
	"github.com/belgrano/ticketera/internal/hub"
	"github.com/belgrano/ticketera/internal/observability"
	"github.com/belgrano/ticketera/internal/persistence"
	"github.com/belgrano/ticketera/internal/repository"
	"github.com/belgrano/ticketera/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	var (
		ticketRepo  repository.TicketRepository
		eventRepo   repository.EventRepository
		courierRepo repository.CourierRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
		eventRepo = repository.NewEventRepository(pool)
		courierRepo = repository.NewCourierRepository(pool)
	} else {
		store := repository.NewMemoryStore(cfg.Hub.EventRetention)
		ticketRepo = store
		eventRepo = store
		courierRepo = repository.NewMemoryCourierDirectory()
	}

	dispatcher := events.NewInMemoryDispatcher()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		CourierRepo: courierRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})
	ingestService := service.NewIngestService(ticketService, redis, logger, metrics)
	queryService := service.NewQueryService(ticketRepo)

	distributionHub := hub.New(hub.Dependencies{
		TicketRepo:    ticketRepo,
		EventRepo:     eventRepo,
		Logger:        logger,
		Metrics:       metrics,
		QueueCapacity: cfg.Hub.QueueCapacity,
	})
	distributionHub.Register(dispatcher)
	defer distributionHub.Close()

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewMiddleware(tokenManager, courierRepo)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(pg, redis),
		Ingest:         handlers.NewIngestHandler(ingestService),
		Tickets:        handlers.NewTicketsHandler(ticketService, queryService),
		Couriers:       handlers.NewCouriersHandler(courierRepo),
		Stream:         handlers.NewStreamHandler(distributionHub, logger, cfg.Hub.Keepalive()),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
		IngestAPIKey:   cfg.Ingest.APIKey,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
