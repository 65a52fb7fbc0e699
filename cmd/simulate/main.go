package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-reservation/internal/db"
	"github.com/hackgods/slot-reservation/internal/logging"
)

// simulate fires bursts of concurrent reservations at the same provider slot
// through the HTTP API and checks that every burst produced at most one winner.
type SimConfig struct {
	APIBaseURL    string
	Rounds        int
	Contenders    int
	ConfirmRatio  float64
	CancelRatio   float64
	ProviderLimit int
	PatientLimit  int
	PostgresDSN   string
}

type DataPool struct {
	Providers []uuid.UUID
	Patients  []uuid.UUID
}

// opStats tallies responses of one endpoint by HTTP status; status 0 is a
// transport failure.
type opStats struct {
	mu        sync.Mutex
	byStatus  map[int]int
	latencies []time.Duration
}

func (o *opStats) record(status int, latency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.byStatus == nil {
		o.byStatus = make(map[int]int)
	}
	o.byStatus[status]++
	o.latencies = append(o.latencies, latency)
}

type opSummary struct {
	Total    int
	ByStatus map[int]int
	P50      time.Duration
	P95      time.Duration
	Max      time.Duration
}

func (o *opStats) summary() opSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := opSummary{Total: len(o.latencies), ByStatus: make(map[int]int, len(o.byStatus))}
	for k, v := range o.byStatus {
		out.ByStatus[k] = v
	}
	if out.Total == 0 {
		return out
	}

	sorted := slices.Clone(o.latencies)
	slices.Sort(sorted)
	out.P50 = percentile(sorted, 0.50)
	out.P95 = percentile(sorted, 0.95)
	out.Max = sorted[len(sorted)-1]
	return out
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	rank := int(math.Ceil(q*float64(len(sorted)))) - 1
	return sorted[max(0, min(rank, len(sorted)-1))]
}

type Metrics struct {
	Reserve opStats
	Verify  opStats
	Cancel  opStats
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger

	rounds       int64
	doubleBooked int64
	unclaimed    int64
}

type reservation struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Status string    `json:"status"`
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV")).With().Str("service", "simulate").Logger()
	logger.Info().Msg("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("providers", len(dataPool.Providers)).Int("patients", len(dataPool.Patients)).Msg("loaded data pool")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run(context.Background())
	sim.Report()

	if atomic.LoadInt64(&sim.doubleBooked) > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Rounds:        getInt("SIM_ROUNDS", 50),
		Contenders:    getInt("SIM_CONTENDERS", 16),
		ConfirmRatio:  getFloat("SIM_CONFIRM_RATIO", 0.5),
		CancelRatio:   getFloat("SIM_CANCEL_RATIO", 0.2),
		ProviderLimit: getInt("SIM_PROVIDER_LIMIT", 50),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 2000),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Rounds <= 0 {
		return fmt.Errorf("SIM_ROUNDS must be > 0")
	}
	if cfg.Contenders < 2 {
		return fmt.Errorf("SIM_CONTENDERS must be >= 2")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	var err error
	if dataPool.Providers, err = loadIDs(ctx, pool, `SELECT id FROM providers LIMIT $1`, cfg.ProviderLimit); err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	if dataPool.Patients, err = loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers loaded, run cmd/seed first")
	}
	if len(dataPool.Patients) < cfg.Contenders {
		return nil, fmt.Errorf("need at least %d patients, have %d", cfg.Contenders, len(dataPool.Patients))
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	s.logger.Info().Int("rounds", s.config.Rounds).Int("contenders", s.config.Contenders).Msg("starting simulation")

	for i := 0; i < s.config.Rounds; i++ {
		provider := s.pool.Providers[rng.Intn(len(s.pool.Providers))]
		at, ok := s.pickOpenSlot(ctx, provider, rng)
		if !ok {
			continue
		}
		s.contend(ctx, provider, at, rng)
	}

	s.logger.Info().Msg("simulation complete")
}

// pickOpenSlot asks the API for open slots over the next week and picks one.
func (s *Simulator) pickOpenSlot(ctx context.Context, provider uuid.UUID, rng *rand.Rand) (time.Time, bool) {
	day := time.Now().UTC().AddDate(0, 0, 1+rng.Intn(7))

	url := fmt.Sprintf("%s/providers/%s/slots?date=%s", s.config.APIBaseURL, provider, day.Format("2006-01-02"))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Msg("list slots failed")
		return time.Time{}, false
	}
	defer resp.Body.Close()

	var body struct {
		Slots []struct {
			At time.Time `json:"at"`
		} `json:"slots"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil || len(body.Slots) == 0 {
		return time.Time{}, false
	}
	return body.Slots[rng.Intn(len(body.Slots))].At, true
}

// contend releases all contenders at once against the same slot.
func (s *Simulator) contend(ctx context.Context, provider uuid.UUID, at time.Time, rng *rand.Rand) {
	atomic.AddInt64(&s.rounds, 1)

	patients := rng.Perm(len(s.pool.Patients))[:s.config.Contenders]
	start := make(chan struct{})
	winners := make(chan reservation, s.config.Contenders)

	var wg sync.WaitGroup
	for _, idx := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			if r, ok := s.reserve(ctx, provider, at, patientID); ok {
				winners <- r
			}
		}(s.pool.Patients[idx])
	}
	close(start)
	wg.Wait()
	close(winners)

	var won []reservation
	for r := range winners {
		won = append(won, r)
	}

	switch len(won) {
	case 0:
		atomic.AddInt64(&s.unclaimed, 1)
		return
	case 1:
	default:
		atomic.AddInt64(&s.doubleBooked, 1)
		s.logger.Error().Str("provider_id", provider.String()).Time("at", at).Int("winners", len(won)).Msg("slot double booked")
	}

	r := won[0]
	roll := rng.Float64()
	switch {
	case roll < s.config.ConfirmRatio && r.Code != "":
		s.post(ctx, &s.metrics.Verify, fmt.Sprintf("/appointments/%s/verify", r.ID), map[string]string{"code": r.Code})
	case roll < s.config.ConfirmRatio+s.config.CancelRatio:
		s.post(ctx, &s.metrics.Cancel, fmt.Sprintf("/appointments/%s/cancel", r.ID), map[string]string{"actor": "patient"})
	}
}

func (s *Simulator) reserve(ctx context.Context, provider uuid.UUID, at time.Time, patientID uuid.UUID) (reservation, bool) {
	body, _ := json.Marshal(map[string]string{
		"provider_id":  provider.String(),
		"scheduled_at": at.Format(time.RFC3339),
		"patient_id":   patientID.String(),
		"reason":       "load simulation",
	})

	resp, latency, err := s.send(ctx, http.MethodPost, "/appointments", body)
	if err != nil {
		s.metrics.Reserve.record(0, latency)
		return reservation{}, false
	}
	defer resp.Body.Close()
	s.metrics.Reserve.record(resp.StatusCode, latency)

	if resp.StatusCode != http.StatusCreated {
		return reservation{}, false
	}
	var r reservation
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		s.logger.Warn().Err(err).Msg("decode reservation")
		return reservation{}, false
	}
	return r, true
}

func (s *Simulator) send(ctx context.Context, method, path string, body []byte) (*http.Response, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func (s *Simulator) post(ctx context.Context, stats *opStats, path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, latency, err := s.send(ctx, http.MethodPost, path, body)
	if err != nil {
		stats.record(0, latency)
		return
	}
	resp.Body.Close()
	stats.record(resp.StatusCode, latency)
}

// Report logs round outcomes and one summary line per endpoint.
func (s *Simulator) Report() {
	s.logger.Info().
		Int64("rounds", atomic.LoadInt64(&s.rounds)).
		Int("contenders", s.config.Contenders).
		Int64("unclaimed", atomic.LoadInt64(&s.unclaimed)).
		Int64("double_booked", atomic.LoadInt64(&s.doubleBooked)).
		Msg("simulation report")

	for _, op := range []struct {
		name  string
		stats *opStats
	}{
		{"reserve", &s.metrics.Reserve},
		{"verify", &s.metrics.Verify},
		{"cancel", &s.metrics.Cancel},
	} {
		sum := op.stats.summary()
		if sum.Total == 0 {
			continue
		}
		statuses := zerolog.Dict()
		for code, n := range sum.ByStatus {
			statuses.Int(strconv.Itoa(code), n)
		}
		s.logger.Info().
			Str("op", op.name).
			Int("total", sum.Total).
			Dict("statuses", statuses).
			Dur("p50", sum.P50).
			Dur("p95", sum.P95).
			Dur("max", sum.Max).
			Msg("operation summary")
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}
