package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/hackgods/slot-reservation/internal/api"
	"github.com/hackgods/slot-reservation/internal/appointment"
	"github.com/hackgods/slot-reservation/internal/config"
	"github.com/hackgods/slot-reservation/internal/db"
	"github.com/hackgods/slot-reservation/internal/directory"
	"github.com/hackgods/slot-reservation/internal/logging"
	"github.com/hackgods/slot-reservation/internal/metrics"
	"github.com/hackgods/slot-reservation/internal/notify"
	"github.com/hackgods/slot-reservation/internal/patient"
	redisclient "github.com/hackgods/slot-reservation/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

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

	// Connect Redis
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

	m := metrics.New(prometheus.DefaultRegisterer)

	var providers directory.Directory = directory.NewPgDirectory(pgPool)
	if cfg.DirectoryCacheTTL > 0 {
		providers = directory.NewCached(providers, cfg.DirectoryCacheTTL)
	}
	patients := patient.NewPgResolver(pgPool)

	dispatcher := notify.NewDispatcher(buildNotifier(cfg, rdb, logger), patients, notify.DispatcherConfig{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	}, logger.With().Str("component", "notify").Logger(), m)
	dispatcher.Start(rootCtx)
	defer dispatcher.Close()

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(repo, providers, locker, cfg,
		appointment.WithLogger(logger),
		appointment.WithMetrics(m),
		appointment.WithNotifier(dispatcher),
	)

	if cfg.EmbeddedSweep {
		sweeper := appointment.NewSweeper(svc, cfg.SweepInterval, logger.With().Str("component", "sweep").Logger())
		go sweeper.Run(rootCtx)
		logger.Info().Dur("interval", cfg.SweepInterval).Msg("embedded expiry sweep enabled")
	}
	if cfg.ExposeCodes {
		logger.Warn().Msg("EXPOSE_CODES is on, confirmation codes are returned in API responses")
	}

	router := api.NewRouter(api.RouterConfig{
		Service:     svc,
		Patients:    patients,
		PgPool:      pgPool,
		Redis:       rdb,
		Gatherer:    prometheus.DefaultGatherer,
		Logger:      logger,
		Env:         cfg.Env,
		Version:     version,
		ExposeCodes: cfg.ExposeCodes,
		RateLimit:   rate.Limit(cfg.RateLimitRPS),
		RateBurst:   cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
}

func buildNotifier(cfg config.Config, rdb *goredis.Client, logger zerolog.Logger) notify.Notifier {
	switch cfg.NotifyDriver {
	case "sendgrid":
		return notify.NewSendGridNotifier(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case "redis":
		return notify.NewRedisPublisher(rdb, cfg.NotifyChannel)
	default:
		return notify.NewLogNotifier(logger)
	}
}
