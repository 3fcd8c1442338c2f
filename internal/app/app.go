// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
	"github.com/JakeFAU/realtime-aqi-etl/internal/archive"
	"github.com/JakeFAU/realtime-aqi-etl/internal/clock/system"
	"github.com/JakeFAU/realtime-aqi-etl/internal/config"
	collyfetcher "github.com/JakeFAU/realtime-aqi-etl/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-aqi-etl/internal/id/uuid"
	"github.com/JakeFAU/realtime-aqi-etl/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/realtime-aqi-etl/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-aqi-etl/internal/scheduler"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/postgres"
	"github.com/JakeFAU/realtime-aqi-etl/internal/worker"
)

// Store is the record store held by the container.
type Store interface {
	airquality.RecordStore
	Close()
}

// Publisher is a notification publisher that owns a connection.
type Publisher interface {
	airquality.Publisher
	Close() error
}

// PublisherFactory opens a Publisher for a project.
type PublisherFactory func(ctx context.Context, projectID string) (Publisher, error)

// StoreFactory opens the record store.
type StoreFactory func(ctx context.Context, cfg postgres.RecordStoreConfig, logger *zap.Logger) (Store, error)

// Option customizes App construction.
type Option func(*options)

type options struct {
	publisherFactory PublisherFactory
	storeFactory     StoreFactory
	fetcher          airquality.Fetcher
}

// WithPublisherFactory overrides how the notification publisher is opened.
func WithPublisherFactory(f PublisherFactory) Option {
	return func(o *options) { o.publisherFactory = f }
}

// WithStoreFactory overrides how the record store is opened.
func WithStoreFactory(f StoreFactory) Option {
	return func(o *options) { o.storeFactory = f }
}

// WithFetcher replaces the Colly fetcher.
func WithFetcher(f airquality.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

func defaultPublisherFactory(ctx context.Context, projectID string) (Publisher, error) {
	return pubsubpublisher.Connect(ctx, projectID)
}

func defaultStoreFactory(ctx context.Context, cfg postgres.RecordStoreConfig, logger *zap.Logger) (Store, error) {
	return postgres.NewRecordStore(ctx, cfg, logger)
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	blobs     storage.Provider
	store     Store
	publisher Publisher
	ids       airquality.IDGenerator
	poller    *worker.Poller
	jobs      *worker.Jobs
}

// New builds every service described by cfg. It fails fast and releases
// whatever was already opened when a later service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{
		publisherFactory: defaultPublisherFactory,
		storeFactory:     defaultStoreFactory,
	}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	blobs, err := storage.Open(ctx, cfg.Archive.Config)
	if err != nil {
		return nil, fmt.Errorf("init archive storage: %w", err)
	}
	a.blobs = blobs
	logger.Info("archive storage ready", zap.String("provider", providerName(cfg.Archive.Provider)))

	store, err := o.storeFactory(ctx, postgres.RecordStoreConfig{
		DSN:             cfg.DB.DSN(),
		Table:           cfg.DB.Table,
		MaxConns:        cfg.DB.MaxConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("init record store: %w", err)
	}
	a.store = store

	if cfg.Notify.Topic != "" {
		pub, err := o.publisherFactory(ctx, cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		logger.Info("batch notifications enabled", zap.String("topic", cfg.Notify.Topic))
	}

	clock := system.New()
	a.ids = uuid.New()

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.API.UserAgent,
			Timeout:   cfg.API.Timeout,
		})
	}
	archiver := archive.New(blobs, clock, cfg.Archive.Prefix, logger.Named("archive"))
	normalizer := airquality.NewNormalizer(clock, logger.Named("normalize"))
	pollerCfg := worker.PollerConfig{
		BaseURL:     cfg.API.BaseURL,
		Token:       cfg.API.Token,
		Concurrency: cfg.Poller.Concurrency,
	}
	if cfg.Poller.RateLimit.RPS > 0 {
		pollerCfg.Limiter = ratelimit.New(cfg.Poller.RateLimit)
	}
	a.poller = worker.NewPoller(fetcher, archiver, normalizer, pollerCfg, logger.Named("poller"))

	var pub airquality.Publisher
	if a.publisher != nil {
		pub = a.publisher
	}
	a.jobs = worker.NewJobs(a.poller, store, pub, a.ids, clock, worker.JobsConfig{
		Cities: cfg.Cities,
		Topic:  cfg.Notify.Topic,
	}, logger.Named("jobs"))

	ok = true
	return a, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Poller returns the fetch-cycle poller.
func (a *App) Poller() *worker.Poller { return a.poller }

// Jobs returns the scheduled job bodies.
func (a *App) Jobs() *worker.Jobs { return a.jobs }

// Store returns the record store.
func (a *App) Store() Store { return a.store }

// Scheduler builds a stopped scheduler for both recurring jobs.
func (a *App) Scheduler(opts ...scheduler.Option) (*scheduler.Scheduler, error) {
	if err := a.cfg.ValidateSchedule(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	return scheduler.New([]scheduler.Job{
		{Name: scheduler.JobFetchAndStore, Interval: a.cfg.Schedule.PollInterval, Run: a.jobs.FetchAndStore},
		{Name: scheduler.JobKeepAlive, Interval: a.cfg.Schedule.KeepAliveInterval, Run: a.jobs.KeepAlive},
	}, a.ids, a.logger.Named("scheduler"), opts...)
}

// Close releases every service in reverse order of construction.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		a.publisher = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	if a.blobs != nil {
		if err := a.blobs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive storage: %w", err))
		}
		a.blobs = nil
	}
	return errors.Join(errs...)
}

func providerName(p string) string {
	if p == "" {
		return storage.ProviderLocal
	}
	return p
}
