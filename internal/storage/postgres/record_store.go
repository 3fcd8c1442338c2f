// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
)

// DefaultTable is the table records are written to when none is configured.
const DefaultTable = "air_quality"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columns lists the table columns in insert order.
var columns = []string{
	"station", "city", "aqi", "pm25", "pm10", "co", "no2", "o3", "so2",
	"dominentpol", "temperature", "humidity", "wind_speed", "pressure",
	"latitude", "longitude", "timestamp",
}

// RecordStoreConfig controls the Postgres connection pool used for air quality rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore upserts air quality records into Postgres.
type RecordStore struct {
	pool   txBeginner
	table  string
	upsert string
	logger *zap.Logger
}

// NewRecordStore creates a Postgres-backed RecordStore using the provided config.
// The pool connects lazily, so no connection is opened until the first operation.
func NewRecordStore(ctx context.Context, cfg RecordStoreConfig, logger *zap.Logger) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(pool, cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(pool txBeginner, table string, logger *zap.Logger) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{
		pool:   pool,
		table:  table,
		upsert: upsertQuery(table),
		logger: logger,
	}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert writes every record of batch in one transaction. On a (timestamp, city)
// conflict every other column is overwritten. A nil or empty batch is a no-op
// that never touches the pool.
func (s *RecordStore) Upsert(ctx context.Context, batch *airquality.Batch) (int, error) {
	if batch.Len() == 0 {
		s.logger.Warn("no data to store")
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", airquality.ErrDatabase, err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	for i, rec := range batch.Records {
		if _, err := tx.Exec(ctx, s.upsert, recordArgs(rec)...); err != nil {
			return 0, fmt.Errorf("%w: upsert record %d (%s): %w", airquality.ErrDatabase, i, rec.City, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", airquality.ErrDatabase, err)
	}
	committed = true
	return batch.Len(), nil
}

// Liveness runs a trivial query in its own transaction to keep the database session warm.
func (s *RecordStore) Liveness(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", airquality.ErrDatabase, err)
	}
	if _, err := tx.Exec(ctx, "SELECT 1"); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return fmt.Errorf("%w: liveness query: %w", airquality.ErrDatabase, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", airquality.ErrDatabase, err)
	}
	return nil
}

func upsertQuery(table string) string {
	placeholders := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, col := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col == "city" || col == "timestamp" {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (%s)
ON CONFLICT (timestamp, city) DO UPDATE SET
	%s`,
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ",\n\t"),
	)
}

func recordArgs(rec airquality.Record) []any {
	return []any{
		rec.Station,
		rec.City,
		rec.AQI,
		rec.PM25,
		rec.PM10,
		rec.CO,
		rec.NO2,
		rec.O3,
		rec.SO2,
		rec.Dominentpol,
		rec.Temperature,
		rec.Humidity,
		rec.WindSpeed,
		rec.Pressure,
		rec.Latitude,
		rec.Longitude,
		rec.Timestamp,
	}
}
