package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-reservation/internal/db"
	"github.com/hackgods/slot-reservation/internal/directory"
	"github.com/hackgods/slot-reservation/internal/logging"
)

var zones = []string{
	"America/Sao_Paulo",
	"America/New_York",
	"America/Los_Angeles",
	"Europe/Lisbon",
	"Europe/Berlin",
	"Asia/Kolkata",
	"UTC",
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV")).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedProviders(context.Background(), pool, faker, envInt("SEED_PROVIDERS", 50), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedPatients(context.Background(), pool, faker, envInt("SEED_PATIENTS", 2000), logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// randomSchedule varies slot length and hours around the default template.
func randomSchedule(faker *gofakeit.Faker) directory.Schedule {
	s := directory.DefaultSchedule()
	s.SlotMinutes = []int{15, 20, 30, 45, 60}[faker.Number(0, 4)]

	switch faker.Number(0, 2) {
	case 0:
		s.Windows = []directory.Window{{Start: "08:00", End: "12:00"}, {Start: "14:00", End: "18:00"}}
	case 1:
		s.Windows = []directory.Window{{Start: "10:00", End: "19:00"}}
	}
	if faker.Bool() {
		s.Weekdays = append(s.Weekdays, time.Saturday)
	}
	return s
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding providers")

	// a handful of specialties and locations shared across providers
	specialties := make([]uuid.UUID, 8)
	for i := range specialties {
		specialties[i] = uuid.New()
	}
	locations := make([]uuid.UUID, 5)
	for i := range locations {
		locations[i] = uuid.New()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		schedule := randomSchedule(faker)
		if err := schedule.Validate(); err != nil {
			return err
		}
		raw, err := json.Marshal(schedule)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO providers (id, name, specialty_id, location_id, time_zone, schedule, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`,
			uuid.New(),
			"Dr. "+faker.Name(),
			specialties[faker.Number(0, len(specialties)-1)],
			locations[faker.Number(0, len(locations)-1)],
			zones[faker.Number(0, len(zones)-1)],
			raw,
		)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("providers seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
				ON CONFLICT (email) DO NOTHING
			`, uuid.New(), faker.Name(), faker.Email(), faker.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
