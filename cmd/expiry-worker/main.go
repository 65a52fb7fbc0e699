package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/slot-reservation/internal/appointment"
	"github.com/hackgods/slot-reservation/internal/config"
	"github.com/hackgods/slot-reservation/internal/db"
	"github.com/hackgods/slot-reservation/internal/directory"
	"github.com/hackgods/slot-reservation/internal/logging"
	"github.com/hackgods/slot-reservation/internal/metrics"
	redisclient "github.com/hackgods/slot-reservation/internal/redis"
	"github.com/hackgods/slot-reservation/internal/visits"
)

// expiry-worker releases lapsed tentative appointments and completes
// appointments whose visit was closed by the records system.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "expiry-worker").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Int("batch_size", cfg.SweepBatchSize).
		Msg("expiry-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConns})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.ClientOptions{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(repo, directory.NewPgDirectory(pgPool), locker, cfg,
		appointment.WithLogger(logger),
		appointment.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		appointment.NewSweeper(svc, cfg.SweepInterval, logger.With().Str("component", "sweep").Logger()).Run(rootCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		listener := visits.NewListener(rdb, cfg.VisitChannel, svc, logger)
		// resubscribe after transient Redis failures
		for {
			err := listener.Run(rootCtx)
			if rootCtx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("visit listener stopped, restarting")
			select {
			case <-rootCtx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			listener = visits.NewListener(rdb, cfg.VisitChannel, svc, logger)
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping expiry worker")
	wg.Wait()
}
