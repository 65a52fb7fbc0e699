package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultCodeTTL        = 5 * time.Minute
	DefaultSweepInterval  = 30 * time.Second
	DefaultSweepBatchSize = 200
)

type Config struct {
	Env               string        // dev, prod
	HTTPPort          string        // default 8080
	LogLevel          string        // debug, info, warn, error
	PostgresDSN       string        // required
	PostgresMaxConns  int32         // pgx pool size
	RedisAddr         string        // host:port
	RedisUsername     string        // redis username
	RedisPassword     string        // redis password
	RedisPoolSize     int
	CodeTTL           time.Duration // how long a confirmation code stays valid
	LockTTL           time.Duration // how long a Redis slot lock lives
	SweepInterval     time.Duration // how often the expiry sweep runs
	SweepBatchSize    int           // max tentative appointments released per sweep
	ShutdownTimeout   time.Duration // graceful shutdown timeout
	DirectoryCacheTTL time.Duration // provider lookup cache, 0 disables
	EmbeddedSweep     bool          // run the sweep inside the API process
	ExposeCodes       bool          // dev only: echo codes in API responses

	NotifyDriver    string // log, sendgrid, redis
	NotifyChannel   string // redis pub/sub channel for code notices
	NotifyWorkers   int
	NotifyQueueSize int

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	VisitChannel string // redis pub/sub channel carrying visit-closed events

	RateLimitRPS   float64 // per client, on code endpoints
	RateLimitBurst int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:               getEnv("APP_ENV", "dev"),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		PostgresMaxConns:  int32(getInt("POSTGRES_MAX_CONNS", 10)),
		RedisPoolSize:     getInt("REDIS_POOL_SIZE", 10),
		CodeTTL:           getDuration("CODE_TTL", DefaultCodeTTL),
		LockTTL:           getDuration("LOCK_TTL", 5*time.Second),
		SweepInterval:     getDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		SweepBatchSize:    getInt("SWEEP_BATCH_SIZE", DefaultSweepBatchSize),
		ShutdownTimeout:   getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		DirectoryCacheTTL: getDuration("DIRECTORY_CACHE_TTL", time.Minute),
		EmbeddedSweep:     getBool("EMBEDDED_SWEEP", false),
		ExposeCodes:       getBool("EXPOSE_CODES", false),
		NotifyDriver:      strings.ToLower(getEnv("NOTIFY_DRIVER", "log")),
		NotifyChannel:     getEnv("NOTIFY_CHANNEL", "appointments.codes"),
		NotifyWorkers:     getInt("NOTIFY_WORKERS", 4),
		NotifyQueueSize:   getInt("NOTIFY_QUEUE_SIZE", 512),
		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: os.Getenv("SENDGRID_FROM_EMAIL"),
		SendGridFromName:  os.Getenv("SENDGRID_FROM_NAME"),
		VisitChannel:      getEnv("VISIT_CHANNEL", "visits.closed"),
		RateLimitRPS:      getFloat("RATE_LIMIT_RPS", 1),
		RateLimitBurst:    getInt("RATE_LIMIT_BURST", 5),
	}

	if cfg.PostgresDSN == "" {
		return Config{}, errors.New("POSTGRES_DSN is required")
	}

	// REDIS_URL wins over the split REDIS_ADDR settings
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword = opts.Addr, opts.Username, opts.Password
	} else {
		cfg.RedisAddr = getEnv("REDIS_ADDR", "127.0.0.1:6379")
		cfg.RedisUsername = getEnv("REDIS_USERNAME", "")
		cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.CodeTTL <= 0 {
		return errors.New("CODE_TTL must be positive")
	}
	if c.SweepInterval <= 0 || c.SweepInterval >= c.CodeTTL {
		return fmt.Errorf("SWEEP_INTERVAL (%s) must be positive and shorter than CODE_TTL (%s)", c.SweepInterval, c.CodeTTL)
	}
	if c.ExposeCodes && c.Env != "dev" {
		return errors.New("EXPOSE_CODES is only allowed with APP_ENV=dev")
	}
	switch c.NotifyDriver {
	case "log", "redis":
	case "sendgrid":
		if c.SendGridAPIKey == "" || c.SendGridFromEmail == "" {
			return errors.New("NOTIFY_DRIVER=sendgrid needs SENDGRID_API_KEY and SENDGRID_FROM_EMAIL")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_DRIVER %q", c.NotifyDriver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Fprintf(os.Stderr, "invalid duration for %s=%q, using default %s\n", key, v, def)
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Fprintf(os.Stderr, "invalid integer for %s=%q, using default %d\n", key, v, def)
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		fmt.Fprintf(os.Stderr, "invalid number for %s=%q, using default %g\n", key, v, def)
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		fmt.Fprintf(os.Stderr, "invalid boolean for %s=%q, using default %t\n", key, v, def)
	}
	return def
}
