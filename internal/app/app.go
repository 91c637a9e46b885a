// Package app wires storage, locking and telemetry from Config into the
// outcome and scheduling services shared by the binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/community-payback-reconciler/internal/api"
	"github.com/hackgods/community-payback-reconciler/internal/config"
	"github.com/hackgods/community-payback-reconciler/internal/db"
	"github.com/hackgods/community-payback-reconciler/internal/outcome"
	redisclient "github.com/hackgods/community-payback-reconciler/internal/redis"
	"github.com/hackgods/community-payback-reconciler/internal/scheduling"
	"github.com/hackgods/community-payback-reconciler/internal/telemetry"
)

type App struct {
	Outcomes   *outcome.Service
	Scheduling *scheduling.Service
	Checks     []api.Check

	logger  *zap.Logger
	closers []func(ctx context.Context) error
}

type stores struct {
	outcomes  outcome.Store
	directory outcome.Directory
	sources   scheduling.Sources
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger.Named("app")}

	st, err := a.openStores(ctx, cfg)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	locker, err := a.newLocker(ctx, cfg)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	client, err := a.newTelemetry(cfg, logger)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}

	a.Outcomes = outcome.NewService(st.outcomes, st.directory, locker, logger)
	a.Scheduling = scheduling.NewService(
		st.sources,
		scheduling.NewScheduler(NewMatcher(cfg.Matching)),
		scheduling.NewTelemetryPublisher(client),
		logger,
	)

	return a, nil
}

func (a *App) openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return stores{}, err
		}
		a.onClose(func(context.Context) error { return sqlDB.Close() })
		a.Checks = append(a.Checks, api.Check{Name: "sqlite", Required: true, Ping: sqlPing(sqlDB)})
		a.logger.Info("store_opened", zap.String("driver", cfg.StoreDriver), zap.String("path", cfg.SQLitePath))

		repo := outcome.NewSQLiteRepository(sqlDB)
		return stores{outcomes: repo, directory: repo, sources: scheduling.NewSQLiteSource(sqlDB).Sources()}, nil

	default:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return stores{}, err
		}
		a.onClose(func(context.Context) error { pool.Close(); return nil })
		a.Checks = append(a.Checks, api.Check{Name: "postgres", Required: true, Ping: pgPing(pool)})

		if err := db.ApplyPostgresSchema(pgCtx, pool); err != nil {
			return stores{}, err
		}
		a.logger.Info("store_opened", zap.String("driver", cfg.StoreDriver))

		repo := outcome.NewPgRepository(pool)
		return stores{outcomes: repo, directory: repo, sources: scheduling.NewPgSource(pool).Sources()}, nil
	}
}

func (a *App) newLocker(ctx context.Context, cfg config.Config) (redisclient.Locker, error) {
	if cfg.LockBackend == config.LockBackendLocal {
		a.logger.Info("lock_backend_selected", zap.String("backend", cfg.LockBackend))
		return redisclient.NewLocalLocker(), nil
	}

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return rdb.Close() })
	a.Checks = append(a.Checks, api.Check{Name: "redis", Required: true, Ping: redisPing(rdb)})
	a.logger.Info("lock_backend_selected",
		zap.String("backend", cfg.LockBackend),
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.LockTTL),
		zap.Duration("wait", cfg.LockWait),
	)

	return redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL, cfg.LockWait), nil
}

// newTelemetry always logs events. With AMQP_URL set they are also published
// through a buffered, breaker-guarded client; an unreachable broker at start
// is fatal, one that goes away later only drops events.
func (a *App) newTelemetry(cfg config.Config, logger *zap.Logger) (telemetry.Client, error) {
	logClient := telemetry.NewLogClient(logger)
	if cfg.AMQPURL == "" {
		return logClient, nil
	}

	sink, err := telemetry.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry sink: %w", err)
	}

	async := telemetry.NewAsyncClient(sink, telemetry.AsyncConfig{
		Buffer:           cfg.TelemetryBuffer,
		FailureThreshold: uint32(cfg.BreakerFailures),
		OpenTimeout:      cfg.BreakerTimeout,
	}, logger)

	a.onClose(func(ctx context.Context) error {
		if err := async.Close(ctx); err != nil {
			return err
		}
		return sink.Close()
	})

	return telemetry.Multi{logClient, async}, nil
}

// NewMatcher maps SCHEDULE_MATCHING onto a Matcher.
func NewMatcher(mode string) scheduling.Matcher {
	if mode == config.MatchingTime {
		return scheduling.TimeWindowMatcher{}
	}
	return scheduling.SlotMatcher{}
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition so telemetry is
// flushed before the stores go away.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close_failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func sqlPing(sqlDB *sql.DB) func(ctx context.Context) error {
	return sqlDB.PingContext
}

func pgPing(pool *pgxpool.Pool) func(ctx context.Context) error {
	return pool.Ping
}

func redisPing(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
