// Package worker implements the fetch cycle and the scheduled job bodies.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
	"github.com/JakeFAU/realtime-aqi-etl/internal/metrics"
)

// DefaultBaseURL is the public WAQI API endpoint.
const DefaultBaseURL = "https://api.waqi.info"

// PollerConfig controls Poller behavior.
type PollerConfig struct {
	BaseURL string
	Token   string
	// Concurrency above one polls cities on a bounded pool; batch order is then unspecified.
	Concurrency int
	// Limiter paces requests when set.
	Limiter RequestLimiter
}

// RequestLimiter blocks until a request to url may be issued.
type RequestLimiter interface {
	Wait(ctx context.Context, url string) error
}

// Poller fetches, archives and normalizes one city at a time.
type Poller struct {
	fetcher    airquality.Fetcher
	archiver   airquality.Archiver
	normalizer *airquality.Normalizer
	cfg        PollerConfig
	logger     *zap.Logger
}

// NewPoller constructs a Poller.
func NewPoller(
	fetcher airquality.Fetcher,
	archiver airquality.Archiver,
	normalizer *airquality.Normalizer,
	cfg PollerConfig,
	logger *zap.Logger,
) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Poller{
		fetcher:    fetcher,
		archiver:   archiver,
		normalizer: normalizer,
		cfg:        cfg,
		logger:     logger,
	}
}

// FeedURL builds the feed URL for city.
func FeedURL(baseURL, city, token string) string {
	return fmt.Sprintf("%s/feed/%s/?token=%s",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(city),
		url.QueryEscape(token),
	)
}

// FetchAll polls every city and collects the records that normalized cleanly.
// It returns a nil batch when no city yielded a record. Per-city failures are
// logged and skipped; only context cancellation is returned as an error.
func (p *Poller) FetchAll(ctx context.Context, cities []string) (*airquality.Batch, error) {
	var records []airquality.Record
	if p.cfg.Concurrency > 1 && len(cities) > 1 {
		records = p.pollPool(ctx, cities)
	} else {
		records = p.pollSequential(ctx, cities)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch cycle interrupted: %w", err)
	}
	if len(records) == 0 {
		p.logger.Warn("no data fetched", zap.Int("cities", len(cities)))
		return nil, nil
	}
	return &airquality.Batch{Records: records}, nil
}

func (p *Poller) pollSequential(ctx context.Context, cities []string) []airquality.Record {
	records := make([]airquality.Record, 0, len(cities))
	for _, city := range cities {
		if ctx.Err() != nil {
			break
		}
		if rec, ok := p.poll(ctx, city); ok {
			records = append(records, rec)
		}
	}
	return records
}

func (p *Poller) pollPool(ctx context.Context, cities []string) []airquality.Record {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		records = make([]airquality.Record, 0, len(cities))
		sem     = make(chan struct{}, p.cfg.Concurrency)
	)
	for _, city := range cities {
		select {
		case <-ctx.Done():
			wg.Wait()
			return records
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			defer func() { <-sem }()
			if rec, ok := p.poll(ctx, city); ok {
				mu.Lock()
				records = append(records, rec)
				mu.Unlock()
			}
		}(city)
	}
	wg.Wait()
	return records
}

func (p *Poller) poll(ctx context.Context, city string) (airquality.Record, bool) {
	rec, err := p.PollCity(ctx, city)
	metrics.ObservePoll(city, pollOutcome(err))
	if err != nil {
		p.logPollError(city, err)
		return airquality.Record{}, false
	}
	return rec, true
}

// PollCity runs the full pipeline for one city: fetch, archive, status check, normalize.
func (p *Poller) PollCity(ctx context.Context, city string) (airquality.Record, error) {
	feedURL := FeedURL(p.cfg.BaseURL, city, p.cfg.Token)
	if p.cfg.Limiter != nil {
		if err := p.cfg.Limiter.Wait(ctx, feedURL); err != nil {
			return airquality.Record{}, fmt.Errorf("%w: %s: %w", airquality.ErrUpstreamUnavailable, city, err)
		}
	}
	resp, err := p.fetcher.Fetch(ctx, airquality.FetchRequest{City: city, URL: feedURL})
	if err != nil {
		return airquality.Record{}, fmt.Errorf("%w: %s: %w", airquality.ErrUpstreamUnavailable, city, err)
	}
	if resp.StatusCode != http.StatusOK {
		return airquality.Record{}, fmt.Errorf("%w: %s: status code %d",
			airquality.ErrUpstreamUnavailable, city, resp.StatusCode)
	}

	payload, err := airquality.DecodePayload(city, resp.Body)
	if err != nil {
		return airquality.Record{}, fmt.Errorf("%w: %w", airquality.ErrUpstreamUnavailable, err)
	}

	if _, err := p.archiver.Archive(ctx, city, payload.Body); err != nil {
		metrics.ObserveArchive(metrics.OutcomeFailure, 0)
		return airquality.Record{}, err
	}
	metrics.ObserveArchive(metrics.OutcomeSuccess, len(payload.Body))

	rec, err := p.normalizer.Normalize(payload)
	if err != nil {
		return airquality.Record{}, err
	}
	return rec, nil
}

func (p *Poller) logPollError(city string, err error) {
	fields := []zap.Field{zap.String("city", city), zap.Error(err)}
	var rejected *airquality.RejectedError
	switch {
	case errors.As(err, &rejected):
		p.logger.Warn("api error", append(fields, zap.String("message", rejected.Message))...)
	case errors.Is(err, airquality.ErrUpstreamUnavailable):
		p.logger.Warn("api request failed", fields...)
	case errors.Is(err, airquality.ErrStorageWrite):
		p.logger.Error("archive write failed, skipping city", fields...)
	case errors.Is(err, airquality.ErrMalformedTimestamp):
		p.logger.Warn("malformed timestamp, dropping record", fields...)
	default:
		p.logger.Error("poll failed", fields...)
	}
}

func pollOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, airquality.ErrUpstreamRejected):
		return "rejected"
	case errors.Is(err, airquality.ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, airquality.ErrStorageWrite):
		return "archive_failed"
	case errors.Is(err, airquality.ErrMalformedTimestamp):
		return "malformed"
	default:
		return metrics.OutcomeFailure
	}
}
