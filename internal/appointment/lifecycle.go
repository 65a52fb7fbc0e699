package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxTransitionAttempts = 5

// transitionFunc decides a transition against the current row. It mutates a in
// place and reports whether to persist; result is returned to the caller after
// the write (a lapse persists the release and still reports ErrExpired).
type transitionFunc func(a *Appointment, now time.Time) (write bool, result error)

// mutate applies fn as a compare-and-set on the row version. When another writer
// wins the race, the row is re-read and fn decides again against the new state,
// so the loser observes the winner's transition instead of overwriting it.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, fn transitionFunc) (*Appointment, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		current, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		write, result := fn(current, s.clock.Now())
		if !write {
			return current, result
		}

		saved, err := s.repo.SaveTransition(ctx, current)
		if errors.Is(err, ErrStaleVersion) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save appointment: %w", err)
		}
		return saved, result
	}
	return nil, ErrConcurrentUpdate
}

// Cancel releases the slot of a tentative or confirmed appointment. Cancelling an
// already cancelled appointment succeeds without change.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	if actor == "" {
		actor = ActorPatient
	}
	if !actor.Valid() {
		return nil, invalid("unknown actor %q", actor)
	}

	var changed bool
	appt, err := s.mutate(ctx, id, func(a *Appointment, _ time.Time) (bool, error) {
		changed = false
		switch a.Status {
		case StatusCancelled:
			return false, nil
		case StatusTentative, StatusConfirmed:
			a.Status = StatusCancelled
			a.clearCode()
			changed = true
			return true, nil
		default:
			return false, invalidState("cannot cancel a %s appointment", a.Status)
		}
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.ObserveCancellation(string(actor))
		s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
			"actor": string(actor),
		})
		s.logger.Info().
			Str("appointment_id", appt.ID.String()).
			Str("actor", string(actor)).
			Msg("appointment cancelled, slot released")
	}
	return appt, nil
}

// Complete closes a confirmed appointment after the visit. Terminal.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.mutate(ctx, id, func(a *Appointment, _ time.Time) (bool, error) {
		if a.Status != StatusConfirmed {
			return false, invalidState("only confirmed appointments can be completed, this one is %s", a.Status)
		}
		a.Status = StatusCompleted
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{})
	return appt, nil
}

// GetStatus returns only the current status.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (AppointmentStatus, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return "", err
	}
	return appt.Status, nil
}
