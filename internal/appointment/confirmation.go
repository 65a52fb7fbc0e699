package appointment

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// CodeGenerator produces a fresh one-time code.
type CodeGenerator func() (string, error)

// RandomCode draws a uniformly random 6-digit code, leading zeros kept.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// stampCode attaches a new code, replacing any previous one.
func (s *Service) stampCode(appt *Appointment, now time.Time) error {
	code, err := s.codes()
	if err != nil {
		return err
	}
	if len(code) != CodeLength {
		return fmt.Errorf("generate code: want %d digits, got %q", CodeLength, code)
	}
	expires := now.Add(s.cfg.CodeTTL)
	appt.Code = &code
	appt.CodeExpiresAt = &expires
	return nil
}

// release cancels a tentative appointment whose code lapsed.
func (a *Appointment) release() {
	a.Status = StatusCancelled
	a.clearCode()
}

// IssueCode attaches a fresh code to a tentative appointment, overwriting the previous one.
func (s *Service) IssueCode(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.issue(ctx, id, false)
}

// ReissueCode replaces the active code. The old code stops working immediately,
// even if its window had not yet passed.
func (s *Service) ReissueCode(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.issue(ctx, id, true)
}

func (s *Service) issue(ctx context.Context, id uuid.UUID, reissue bool) (*Appointment, error) {
	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) (bool, error) {
		if a.Status != StatusTentative {
			return false, invalidState("cannot issue a code for a %s appointment", a.Status)
		}
		if a.codeLapsed(now) {
			a.release()
			return true, ErrExpired
		}
		if err := s.stampCode(a, now); err != nil {
			return false, err
		}
		return true, nil
	})
	if errors.Is(err, ErrExpired) {
		s.afterLapse(ctx, appt, "issue_after_expiry")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveCodeIssued()
	if reissue {
		s.logEvent(ctx, appt.ID, EventAppointmentCodeReissued, map[string]any{
			"code_expires_at": appt.CodeExpiresAt,
		})
	}
	s.notifyCode(appt, reissue)
	return appt, nil
}

// Verify checks a submitted code. A match confirms the appointment; a lapsed code
// releases the slot and fails with ErrExpired; a wrong code fails with ErrMismatch and
// leaves the expiry untouched.
func (s *Service) Verify(ctx context.Context, id uuid.UUID, submitted string) (*Appointment, error) {
	appt, err := s.mutate(ctx, id, func(a *Appointment, now time.Time) (bool, error) {
		if a.Status != StatusTentative {
			return false, ErrNotPending
		}
		if a.codeLapsed(now) {
			a.release()
			return true, ErrExpired
		}
		if !codesEqual(a.Code, submitted) {
			return false, ErrMismatch
		}
		a.Status = StatusConfirmed
		a.IsVerified = true
		a.clearCode()
		return true, nil
	})
	s.metrics.ObserveVerification(verifyOutcome(err))

	switch {
	case errors.Is(err, ErrExpired):
		s.afterLapse(ctx, appt, "verify_after_expiry")
		return nil, err
	case err != nil:
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentConfirmed, map[string]any{})
	s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("appointment confirmed")
	return appt, nil
}

func (s *Service) afterLapse(ctx context.Context, appt *Appointment, reason string) {
	if appt == nil {
		return
	}
	s.logEvent(ctx, appt.ID, EventAppointmentExpired, map[string]any{
		"reason": reason,
	})
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("reason", reason).
		Msg("tentative appointment lapsed, slot released")
}

func codesEqual(stored *string, submitted string) bool {
	if stored == nil || len(submitted) != len(*stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(submitted)) == 1
}

func verifyOutcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	case errors.Is(err, ErrInvalidState):
		return "not_pending"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
