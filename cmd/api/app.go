package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/user/catalog-service/internal/adapter/chromedp_crawler"
	"github.com/user/catalog-service/internal/adapter/memory"
	"github.com/user/catalog-service/internal/adapter/postgres"
	redis_adapter "github.com/user/catalog-service/internal/adapter/redis"
	"github.com/user/catalog-service/internal/delivery/http/handler"
	"github.com/user/catalog-service/internal/entity"
	"github.com/user/catalog-service/internal/queue"
	"github.com/user/catalog-service/internal/repository"
	"github.com/user/catalog-service/internal/scraper"
	"github.com/user/catalog-service/internal/staleness"
	"github.com/user/catalog-service/internal/usecase"
	"github.com/user/catalog-service/pkg/config"
)

const queueName = "scrape"

// app holds the wired components shared by serve and worker.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db  *sqlx.DB
	rdb *redis.Client

	jobs        repository.ScrapeJobRepository
	navs        repository.NavigationRepository
	categories  repository.CategoryRepository
	products    repository.ProductRepository
	viewHistory repository.ViewHistoryRepository

	queue   *queue.Queue
	trigger *usecase.Trigger
	scrape  usecase.ScrapeService
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// --- Storage ---
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		a.db = db
		a.jobs = postgres.NewScrapeJobRepo(db)
		a.navs = postgres.NewNavigationRepo(db)
		a.categories = postgres.NewCategoryRepo(db)
		a.products = postgres.NewProductRepo(db)
		a.viewHistory = postgres.NewViewHistoryRepo(db)
		logger.Info("PostgreSQL connection pool established")
	default:
		catalog := memory.NewCatalog()
		a.jobs = memory.NewScrapeJobRepo()
		a.navs = catalog.Navigations()
		a.categories = catalog.Categories()
		a.products = catalog.Products()
		a.viewHistory = memory.NewViewHistoryRepo()
		logger.Warn("Using in-memory storage, data is lost on restart")
	}

	// --- Queue ---
	var store queue.Store
	switch cfg.QueueDriver {
	case config.DriverRedis:
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("unable to connect to redis: %w", err)
		}
		store = redis_adapter.NewQueueStore(a.rdb, queueName, cfg.QueueVisibility(), logger)
		logger.Info("Redis connection established")
	default:
		store = queue.NewMemoryStore(cfg.QueueVisibility())
	}
	a.queue = queue.New(queueName, store, queue.Options{
		Attempts:     cfg.QueueAttempts,
		Backoff:      cfg.QueueBackoff(),
		Concurrency:  cfg.Workers,
		PollInterval: cfg.QueuePollInterval(),
		JobTimeout:   cfg.JobTimeout(),
	}, logger)

	// --- Use cases ---
	triggerOpts := []usecase.TriggerOption{usecase.WithTriggerTimeout(cfg.TriggerTimeout())}
	if a.rdb != nil && cfg.TriggerDebounce() > 0 {
		triggerOpts = append(triggerOpts, usecase.WithTriggerGuard(redis_adapter.NewTriggerGuard(a.rdb), cfg.TriggerDebounce()))
	}
	a.trigger = usecase.NewTrigger(logger, triggerOpts...)
	a.scrape = usecase.NewScrapeService(a.jobs, a.queue, staleness.NewPolicy(cfg.CacheTTL()), cfg.DispatchDelay(), logger)

	return a, nil
}

func (a *app) services() handler.Services {
	return handler.Services{
		Scrape:      a.scrape,
		Navigation:  usecase.NewNavigationService(a.navs, a.scrape, a.trigger, a.cfg.BaseURL, a.logger),
		Category:    usecase.NewCategoryService(a.categories, a.navs, a.scrape, a.trigger, a.logger),
		Product:     usecase.NewProductService(a.products, a.scrape, a.trigger, a.logger),
		ViewHistory: usecase.NewViewHistoryService(a.viewHistory, a.logger),
	}
}

func (a *app) healthChecks() map[string]handler.HealthCheck {
	checks := make(map[string]handler.HealthCheck)
	if a.db != nil {
		checks["postgres"] = a.db.PingContext
	}
	if a.rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() }
	}
	return checks
}

// startWorkers binds the scrape routines to the queue, starts polling and
// schedules maintenance. The returned function blocks until in-flight jobs
// finish once ctx is cancelled.
func (a *app) startWorkers(ctx context.Context) (func(), error) {
	fetcher := chromedp_crawler.NewChromedpFetcher(a.cfg.Workers, a.cfg.PageLoadTimeout(), a.cfg.FetchRPS, a.logger)
	sel := scraper.DefaultSelectors()

	dispatcher := usecase.NewDispatcher(a.jobs, a.logger)
	dispatcher.Register(entity.TargetTypeNavigation, scraper.NewNavigationScraper(fetcher, a.navs, sel, a.logger))
	dispatcher.Register(entity.TargetTypeCategory, scraper.NewCategoryScraper(fetcher, a.categories, sel, a.logger))
	dispatcher.Register(entity.TargetTypeProductList, scraper.NewProductListScraper(fetcher, a.products, sel, a.logger))
	dispatcher.Register(entity.TargetTypeProductDetail, scraper.NewProductDetailScraper(fetcher, a.products, sel, a.logger))
	dispatcher.Bind(a.queue)

	maintenance := usecase.NewMaintenance(a.jobs, a.queue, a.cfg.StaleProcessingAfter(), a.cfg.JobRetention(), a.logger)
	if n, err := maintenance.RecoverQueue(ctx); err != nil {
		a.logger.Error("Initial queue recovery failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("Recovered scrape jobs on startup", zap.Int("requeued", n))
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if err := maintenance.Schedule(c, a.cfg.RecoverySchedule, a.cfg.RetentionSchedule); err != nil {
		return nil, err
	}
	c.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.queue.Run(ctx); err != nil {
			a.logger.Error("Queue stopped with error", zap.Error(err))
		}
	}()

	return func() {
		<-c.Stop().Done()
		wg.Wait()
	}, nil
}

func (a *app) close() {
	if a.trigger != nil {
		a.trigger.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
