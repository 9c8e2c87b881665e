package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"candle-pattern-lab/internal/config"
	"candle-pattern-lab/internal/storage"
	chstore "candle-pattern-lab/internal/storage/clickhouse"
	"candle-pattern-lab/internal/storage/filecache"
	"candle-pattern-lab/internal/storage/memory"
	"candle-pattern-lab/internal/storage/migrations"
	pgstore "candle-pattern-lab/internal/storage/postgres"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Candles storage.CandleStore
	Results storage.ResultStore
}

// createStores creates all stores. The returned cleanup closes every connection.
//
//   - use_memory: candles and results in memory
//   - otherwise: candles in the file cache, mirrored into ClickHouse when
//     clickhouse_dsn is set; results in PostgreSQL when postgres_dsn is set,
//     in memory otherwise
func createStores(ctx context.Context, cfg config.StorageConfig, logger logrus.FieldLogger) (*Stores, func(), error) {
	if cfg.UseMemory {
		logger.Info("Using in-memory storage")
		stores := &Stores{
			Candles: memory.NewCandleStore(),
			Results: memory.NewResultStore(),
		}
		return stores, func() {}, nil
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	stores := &Stores{}

	// Candles
	var candles storage.CandleStore = filecache.NewCandleStore(cfg.DataDir)
	if cfg.ClickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("prepare clickhouse: %w", err)
		}
		closers = append(closers, func() { chConn.Close() })
		candles = storage.NewMirroredCandleStore(logger, candles, chstore.NewCandleStore(chConn))
		logger.Info("Mirroring candles into ClickHouse")
	}
	stores.Candles = candles

	// Results
	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPoolWithOptions(ctx, cfg.PostgresDSN, pgstore.PoolOptions{MaxConns: cfg.PostgresConns})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		stores.Results = pgstore.NewResultStore(pool)
		logger.Info("Storing run results in PostgreSQL")
	} else {
		stores.Results = memory.NewResultStore()
	}

	return stores, cleanup, nil
}
