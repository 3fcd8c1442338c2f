package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
	"github.com/JakeFAU/realtime-aqi-etl/internal/metrics"
)

// BatchFetcher produces one batch per fetch cycle.
type BatchFetcher interface {
	FetchAll(ctx context.Context, cities []string) (*airquality.Batch, error)
}

// JobsConfig controls the scheduled job bodies.
type JobsConfig struct {
	Cities []string
	// Topic receives a BatchStored notification after each commit; empty disables it.
	Topic string
}

// Jobs holds the bodies of the fetch-and-store and keep-alive jobs.
type Jobs struct {
	fetcher   BatchFetcher
	store     airquality.RecordStore
	publisher airquality.Publisher
	ids       airquality.IDGenerator
	clock     airquality.Clock
	cfg       JobsConfig
	logger    *zap.Logger
}

// NewJobs constructs Jobs. publisher may be nil.
func NewJobs(
	fetcher BatchFetcher,
	store airquality.RecordStore,
	publisher airquality.Publisher,
	ids airquality.IDGenerator,
	clock airquality.Clock,
	cfg JobsConfig,
	logger *zap.Logger,
) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// FetchAndStore runs one fetch cycle and upserts the resulting batch.
// An absent batch is not an error.
func (j *Jobs) FetchAndStore(ctx context.Context) error {
	batch, err := j.fetcher.FetchAll(ctx, j.cfg.Cities)
	if err != nil {
		return fmt.Errorf("fetch all: %w", err)
	}
	if batch == nil {
		j.logger.Warn("no data to store")
		return nil
	}

	n, err := j.store.Upsert(ctx, batch)
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	metrics.ObserveUpsert(n)
	j.logger.Info("data stored successfully", zap.Int("records", n), zap.Strings("cities", batch.Cities()))

	j.notify(ctx, batch, n)
	return nil
}

// KeepAlive issues one liveness probe against the store.
func (j *Jobs) KeepAlive(ctx context.Context) error {
	err := j.store.Liveness(ctx)
	metrics.ObserveLiveness(metrics.Outcome(err))
	if err != nil {
		return fmt.Errorf("keep alive: %w", err)
	}
	j.logger.Info("database is active")
	return nil
}

// notify publishes a BatchStored event; failures are logged because the batch is already committed.
func (j *Jobs) notify(ctx context.Context, batch *airquality.Batch, n int) {
	if j.cfg.Topic == "" || j.publisher == nil {
		return
	}
	runID := airquality.RunIDFrom(ctx)
	if runID == "" && j.ids != nil {
		id, err := j.ids.NewID()
		if err != nil {
			j.logger.Warn("generate run id failed", zap.Error(err))
		}
		runID = id
	}
	event := airquality.BatchStored{
		RunID:    runID,
		Cities:   batch.Cities(),
		Records:  n,
		StoredAt: j.clock.Now().UTC(),
	}
	msgID, err := j.publisher.Publish(ctx, j.cfg.Topic, event)
	if err != nil {
		j.logger.Warn("publish batch notification failed", zap.String("topic", j.cfg.Topic), zap.Error(err))
		return
	}
	j.logger.Info("batch notification published",
		zap.String("topic", j.cfg.Topic),
		zap.String("run_id", runID),
		zap.String("message_id", msgID),
	)
}
