// Package app wires configuration, storage, the queue and services into the
// components the binaries run.
package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/helpdesk-labs/triage-service/internal/api/http"
	"github.com/helpdesk-labs/triage-service/internal/api/http/handlers"
	"github.com/helpdesk-labs/triage-service/internal/auth"
	"github.com/helpdesk-labs/triage-service/internal/config"
	"github.com/helpdesk-labs/triage-service/internal/events"
	"github.com/helpdesk-labs/triage-service/internal/kb"
	"github.com/helpdesk-labs/triage-service/internal/observability"
	"github.com/helpdesk-labs/triage-service/internal/persistence"
	"github.com/helpdesk-labs/triage-service/internal/provider"
	"github.com/helpdesk-labs/triage-service/internal/queue"
	"github.com/helpdesk-labs/triage-service/internal/repository"
	"github.com/helpdesk-labs/triage-service/internal/repository/memstore"
	"github.com/helpdesk-labs/triage-service/internal/service"
	"github.com/helpdesk-labs/triage-service/internal/worker"
)

// Queue drivers.
const (
	QueueDriverRedis  = "redis"
	QueueDriverMemory = "memory"
)

// Repositories groups the storage views used by the services.
type Repositories struct {
	Tickets      repository.TicketRepository
	Suggestions  repository.AgentSuggestionRepository
	AuditLogs    repository.AuditLogRepository
	TriageConfig repository.TriageConfigRepository
	Articles     repository.ArticleRepository
}

// App holds every long-lived dependency of a process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Repos    Repositories
	Queue    queue.Queue
	Events   events.Dispatcher
	Tokens   *auth.TokenManager
	Settings *service.SettingsService
	Tickets  *service.TicketService
	Triage   *service.TriageService
}

// Build connects storage and constructs services. Without POSTGRES_DSN the
// repositories live in memory; QUEUE_DRIVER=memory keeps the queue in
// process, which only works when the worker runs in the same binary.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Events:  events.NewInMemoryDispatcher(),
		Tokens:  auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL()),
	}

	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Postgres = pg
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				a.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool := pg.PoolHandle()
		a.Repos = Repositories{
			Tickets:      repository.NewTicketRepository(pool),
			Suggestions:  repository.NewAgentSuggestionRepository(pool),
			AuditLogs:    repository.NewAuditLogRepository(pool),
			TriageConfig: repository.NewTriageConfigRepository(pool),
			Articles:     repository.NewArticleRepository(pool),
		}
	} else {
		logger.Warn("POSTGRES_DSN not set; using in-memory storage")
		store := memstore.New()
		a.Repos = Repositories{
			Tickets:      store.Tickets(),
			Suggestions:  store.Suggestions(),
			AuditLogs:    store.AuditLogs(),
			TriageConfig: store.TriageConfig(),
			Articles:     store.Articles(),
		}
	}

	opts := queue.OptionsFromConfig(cfg.Queue)
	switch cfg.Queue.Driver {
	case QueueDriverMemory:
		a.Queue = queue.NewMemoryQueue(opts)
	case QueueDriverRedis, "":
		a.Redis = persistence.NewRedis(ctx, cfg.Redis, cfg.App.Name, logger)
		a.Queue = queue.NewRedisQueue(a.Redis.Client, cfg.Queue.KeyPrefix, cfg.Queue.Name, opts)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}

	prov, err := provider.New(ctx, cfg.Provider, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build provider: %w", err)
	}
	info := prov.Info()
	logger.Info("triage provider ready",
		zap.String("provider", info.Provider),
		zap.String("model", info.Model),
		zap.String("prompt_version", info.PromptVersion))

	a.Settings = service.NewSettingsService(a.Repos.TriageConfig, cfg.Triage, logger)
	a.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo:     a.Repos.Tickets,
		SuggestionRepo: a.Repos.Suggestions,
		AuditRepo:      a.Repos.AuditLogs,
		Queue:          a.Queue,
		Dispatcher:     a.Events,
		Logger:         logger,
	})
	a.Triage = service.NewTriageService(service.TriageDependencies{
		TicketRepo:     a.Repos.Tickets,
		SuggestionRepo: a.Repos.Suggestions,
		AuditRepo:      a.Repos.AuditLogs,
		Provider:       prov,
		Retriever:      kb.NewRetriever(a.Repos.Articles),
		Settings:       a.Settings,
		Dispatcher:     a.Events,
		Metrics:        a.Metrics,
		Logger:         logger,
	})
	service.NewNotificationService(a.Events, logger, cfg.Notification).RegisterHandlers()
	return a, nil
}

// HTTP builds the fiber application with every route registered.
func (a *App) HTTP() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               a.Config.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, a.Logger, a.Metrics, a.Config.App.RequestTimeout())

	deps := map[string]handlers.Pinger{}
	if a.Postgres != nil {
		deps["postgres"] = a.Postgres
	}
	if a.Redis != nil {
		deps["redis"] = a.Redis
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, deps),
		Tickets:        handlers.NewTicketsHandler(a.Tickets),
		StaffTickets:   handlers.NewStaffTicketsHandler(a.Tickets),
		Admin:          handlers.NewAdminHandler(a.Settings, a.Queue, a.Metrics),
		AuthMiddleware: auth.NewAuthMiddleware(a.Tokens),
	})
	return app
}

// WorkerPool builds the triage worker pool over the app's queue.
func (a *App) WorkerPool(recoverOnStart bool) *worker.Pool {
	opts := worker.PoolOptionsFromConfig(a.Config.Worker, a.Config.Queue)
	opts.RecoverOnStart = recoverOnStart
	return worker.NewPool(a.Queue, a.Triage, opts, a.Metrics, a.Logger.Named("worker"))
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
