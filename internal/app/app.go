package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"EditaisScanner/internal/config"
	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/infrastructure/auth"
	"EditaisScanner/internal/infrastructure/cache"
	"EditaisScanner/internal/infrastructure/challenge"
	"EditaisScanner/internal/infrastructure/events"
	"EditaisScanner/internal/infrastructure/httpapi"
	"EditaisScanner/internal/infrastructure/parser"
	"EditaisScanner/internal/infrastructure/scheduler"
	"EditaisScanner/internal/infrastructure/storage"
	"EditaisScanner/internal/infrastructure/telegram"
	"EditaisScanner/internal/logging"
	"EditaisScanner/internal/ports"
	"EditaisScanner/internal/usecase"
)

const stopTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	db           *sqlx.DB
	cache        *cache.SessionCache
	publisher    *events.Publisher
	orchestrator *usecase.Orchestrator
	scheduler    *usecase.Scheduler
	server       *httpapi.Server
}

// New connects the store and optional collaborators and builds the run graph.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	db, err := storage.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db

	if cfg.Database.MigrateOnStart {
		if err := storage.RunMigrations(db.DB, baseLogger.With("component", "migrate")); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	var sessions auth.Cache
	if cfg.Redis.Addr != "" {
		c, err := cache.Connect(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, baseLogger.With("component", "cache"))
		if err != nil {
			baseLogger.Warn("session cache disabled", "error", err)
		} else {
			a.cache = c
			sessions = c
		}
	}

	var solver auth.Solver
	if cfg.Challenge.URL != "" {
		solver = challenge.NewFlareSolverr(cfg.Challenge.URL, cfg.Challenge.MaxTimeout, baseLogger.With("component", "challenge"))
	}

	registry, err := parser.BuildRegistry(cfg.Sources, parser.Deps{
		Cache:  sessions,
		Solver: solver,
		Logger: baseLogger.With("component", "registry"),
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build sources: %w", err)
	}

	var publisher ports.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		a.publisher = events.NewPublisher(events.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, baseLogger.With("component", "events"))
		publisher = a.publisher
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, baseLogger.With("component", "telegram"))
	}

	repo := storage.NewPostgresRepository(db)
	loc := cfg.Scheduler.Location()

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Registry:    registry,
		Resolver:    usecase.NewResolver(repo, baseLogger.With("component", "resolver")),
		Filters:     repo,
		Events:      publisher,
		Notifier:    notifier,
		Logger:      baseLogger.With("component", "orchestrator"),
		Location:    loc,
		Concurrency: cfg.Run.Concurrency,
		TimeBudget:  cfg.Run.TimeBudget,
		MaxPages:    cfg.Run.MaxPages,
		SummaryMax:  cfg.Run.SummaryMax,
		DefaultDays: cfg.Run.DefaultDays,
	})

	if cfg.Scheduler.Enabled {
		a.scheduler = usecase.NewScheduler(
			scheduler.NewCronScheduler(loc, baseLogger.With("component", "cron")),
			a.orchestrator,
			ScheduledRuns(cfg.Scheduler.Jobs),
			baseLogger.With("component", "scheduler"),
		)
	}

	a.server = httpapi.NewServer(a.orchestrator, repo, loc, baseLogger.With("component", "http"))

	baseLogger.Info("application ready",
		"sources", strings.Join(registry.Names(), ","),
		"scheduler", cfg.Scheduler.Enabled,
		"events", publisher != nil,
		"notifications", notifier != nil,
	)
	return a, nil
}

// Serve runs the scheduler and HTTP trigger until ctx is canceled.
func (a *Application) Serve(ctx context.Context) error {
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := a.scheduler.Stop(stopCtx); err != nil {
				a.logger.Warn("scheduler stop", "error", err)
			}
		}()
	}
	return a.server.ListenAndServe(ctx, a.cfg.HTTP.Addr)
}

// RunOnce performs a single acquisition run.
func (a *Application) RunOnce(ctx context.Context, req domain.RunRequest) (domain.RunReport, error) {
	return a.orchestrator.Run(ctx, req)
}

// Close releases every connection opened by New.
func (a *Application) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// ScheduledRuns converts configured cron jobs into run requests.
func ScheduledRuns(jobs []config.JobConfig) []usecase.ScheduledRun {
	runs := make([]usecase.ScheduledRun, 0, len(jobs))
	for _, job := range jobs {
		var regions []string
		for _, r := range job.Regions {
			regions = append(regions, strings.ToUpper(strings.TrimSpace(r)))
		}
		runs = append(runs, usecase.ScheduledRun{
			Name: job.Name,
			Spec: job.Spec,
			Request: domain.RunRequest{
				Days:       job.Days,
				Sources:    job.Sources,
				Regions:    regions,
				Categories: job.Categories,
			},
		})
	}
	return runs
}
