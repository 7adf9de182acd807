package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/workflow-service/internal/api/http"
	"github.com/spec-kit/workflow-service/internal/api/http/handlers"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/config"
	"github.com/spec-kit/workflow-service/internal/events"
	"github.com/spec-kit/workflow-service/internal/observability"
	"github.com/spec-kit/workflow-service/internal/persistence"
	"github.com/spec-kit/workflow-service/internal/repository"
	"github.com/spec-kit/workflow-service/internal/service"
	"github.com/spec-kit/workflow-service/internal/worker"
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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	workflowRepo := repository.NewWorkflowRepository(pool)
	stateRepo := repository.NewWorkflowStateRepository(pool)
	transitionRepo := repository.NewWorkflowTransitionRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTransitionHistoryRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	machine := service.NewStateMachine(stateRepo, transitionRepo)
	slaService := service.NewSLAService(transitionRepo, historyRepo)
	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		WorkflowRepo:   workflowRepo,
		StateRepo:      stateRepo,
		TransitionRepo: transitionRepo,
		TicketRepo:     ticketRepo,
		Tx:             txRunner,
		Dispatcher:     dispatcher,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     ticketRepo,
		WorkflowRepo:   workflowRepo,
		StateRepo:      stateRepo,
		TransitionRepo: transitionRepo,
		HistoryRepo:    historyRepo,
		Machine:        machine,
		SLA:            slaService,
		Tx:             txRunner,
		Dispatcher:     dispatcher,
	})
	historyService := service.NewHistoryService(ticketRepo, stateRepo, transitionRepo, historyRepo, slaService)
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)

	workflowService.RegisterHandlers()
	worker.StartNotificationWorker(notificationService)

	escalationWorker := worker.NewEscalationWorker(slaService, dispatcher, redis, metrics, logger, cfg.SLA)
	go escalationWorker.Run(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Workflows:      handlers.NewWorkflowsHandler(workflowService),
		Tickets:        handlers.NewTicketsHandler(ticketService, historyService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
