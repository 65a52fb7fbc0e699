package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExpireStale cancels tentative appointments whose code window has passed,
// releasing their slots. Per-row failures are logged and skipped; the count of
// released appointments is returned.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	candidates, err := s.repo.FindExpiredTentative(ctx, now, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find expired tentative appointments: %w", err)
	}

	released := 0
	for _, candidate := range candidates {
		var lapsed bool
		appt, err := s.mutate(ctx, candidate.ID, func(a *Appointment, now time.Time) (bool, error) {
			lapsed = false
			// a concurrent verify or cancel may have landed first
			if a.Status != StatusTentative || !a.codeLapsed(now) {
				return false, nil
			}
			a.release()
			lapsed = true
			return true, nil
		})
		if err != nil {
			s.logger.Error().Err(err).Str("appointment_id", candidate.ID.String()).Msg("failed to expire appointment")
			continue
		}
		if !lapsed {
			continue
		}
		released++
		s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
			"reason": "sweep",
		})
		s.logger.Info().
			Str("appointment_id", appt.ID.String()).
			Str("reason", "sweep").
			Msg("tentative appointment lapsed, slot released")
	}

	s.metrics.ObserveSweepExpired(released)
	return released, nil
}

// Sweeper runs ExpireStale on a fixed interval.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		interval: interval,
		timeout:  20 * time.Second,
		logger:   logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *Sweeper) Run(ctx context.Context) {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("stopping expiry sweep")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Sweeper) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.svc.ExpireStale(runCtx)
	if err != nil {
		w.logger.Error().Err(err).Msg("expiry run error")
		return 0
	}
	ev := w.logger.Debug()
	if n > 0 {
		ev = w.logger.Info()
	}
	ev.Int("released", n).Dur("took", time.Since(start)).Msg("expiry run complete")
	return n
}
