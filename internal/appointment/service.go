package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-reservation/internal/config"
	"github.com/hackgods/slot-reservation/internal/directory"
	"github.com/hackgods/slot-reservation/internal/metrics"
	"github.com/hackgods/slot-reservation/internal/notify"
	redisclient "github.com/hackgods/slot-reservation/internal/redis"
	"github.com/hackgods/slot-reservation/internal/timezone"
)

const (
	EventAppointmentCreated      = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed    = "APPOINTMENT_CONFIRMED"
	EventAppointmentCodeReissued = "APPOINTMENT_CODE_REISSUED"
	EventAppointmentExpired      = "APPOINTMENT_EXPIRED"
	EventAppointmentCancelled    = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted    = "APPOINTMENT_COMPLETED"
)

const maxReasonLength = 1000

// CodeNotifier accepts code notices for asynchronous delivery.
type CodeNotifier interface {
	Enqueue(notice notify.CodeNotice) bool
}

type Service struct {
	repo      Repository
	directory directory.Directory
	locker    redisclient.Locker
	cfg       config.Config

	clock    timezone.Clock
	codes    CodeGenerator
	notifier CodeNotifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

type Option func(*Service)

func WithClock(c timezone.Clock) Option { return func(s *Service) { s.clock = c } }
func WithCodeGenerator(g CodeGenerator) Option { return func(s *Service) { s.codes = g } }
func WithNotifier(n CodeNotifier) Option { return func(s *Service) { s.notifier = n } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, dir directory.Directory, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	if locker == nil {
		locker = redisclient.NoopLocker()
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = config.DefaultCodeTTL
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = config.DefaultSweepBatchSize
	}
	s := &Service{
		repo:      repo,
		directory: dir,
		locker:    locker,
		cfg:       cfg,
		clock:     timezone.SystemClock{},
		codes:     RandomCode,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve claims a provider slot for a patient. Exactly one of several concurrent
// callers for the same (provider, instant) gets the appointment; the rest get ErrSlotTaken.
// The returned appointment is tentative and already carries an active code.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	start := time.Now()
	appt, err := s.reserve(ctx, req)
	s.metrics.ObserveReservation(reserveOutcome(err), time.Since(start).Seconds())
	return appt, err
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	at := req.At.UTC()
	now := s.clock.Now()

	if req.ProviderID == uuid.Nil {
		return nil, invalid("provider_id is required")
	}
	if req.PatientID == uuid.Nil {
		return nil, invalid("patient_id is required")
	}
	if utf8.RuneCountInString(req.Reason) > maxReasonLength {
		return nil, invalid("reason exceeds %d characters", maxReasonLength)
	}
	if !at.After(now) {
		return nil, ErrPastInstant
	}

	provider, n, err := s.lookupProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}

	day, err := n.ParseDate(n.LocalDate(at))
	if err != nil {
		return nil, invalid("%v", err)
	}
	if !slices.ContainsFunc(provider.Schedule.Instants(n, day), at.Equal) {
		return nil, ErrOffSchedule
	}

	appt := &Appointment{
		ID:          uuid.New(),
		ProviderID:  provider.ID,
		SpecialtyID: provider.SpecialtyID,
		LocationID:  provider.LocationID,
		PatientID:   req.PatientID,
		Status:      StatusTentative,
		Reason:      req.Reason,
	}
	appt.setSchedule(n, at)
	if err := s.stampCode(appt, now); err != nil {
		return nil, err
	}

	var created *Appointment
	claim := func(claimCtx context.Context) error {
		claimed, err := s.repo.Claim(claimCtx, appt)
		if err != nil {
			return err
		}
		created = claimed
		return nil
	}

	err = s.locker.WithSlotLock(ctx, provider.ID, at, claim)
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		// the partial unique index still decides the race
		s.logger.Warn().Err(err).
			Str("provider_id", provider.ID.String()).
			Time("scheduled_at", at).
			Msg("slot lock unavailable, claiming without it")
		s.metrics.ObserveLockBypassed()
		err = claim(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) || errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	s.metrics.ObserveCodeIssued()
	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"provider_id":     created.ProviderID.String(),
		"patient_id":      created.PatientID.String(),
		"scheduled_at":    created.ScheduledAt,
		"code_expires_at": created.CodeExpiresAt,
	})
	s.notifyCode(created, false)

	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("provider_id", created.ProviderID.String()).
		Time("scheduled_at", created.ScheduledAt).
		Msg("slot reserved")

	return created, nil
}

func (s *Service) lookupProvider(ctx context.Context, id uuid.UUID) (*directory.Provider, timezone.Normalizer, error) {
	provider, err := s.directory.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownProvider) {
			return nil, timezone.Normalizer{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
		}
		return nil, timezone.Normalizer{}, fmt.Errorf("load provider: %w", err)
	}
	n, err := provider.Normalizer()
	if err != nil {
		return nil, timezone.Normalizer{}, fmt.Errorf("provider %s: %w", id, err)
	}
	return provider, n, nil
}

// Get returns the appointment as currently stored.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAppointmentsByPatient retrieves appointments for a specific patient
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) notifyCode(appt *Appointment, reissued bool) {
	if s.notifier == nil || appt.Code == nil || appt.CodeExpiresAt == nil {
		return
	}
	s.notifier.Enqueue(notify.CodeNotice{
		AppointmentID: appt.ID,
		PatientID:     appt.PatientID,
		ProviderID:    appt.ProviderID,
		Code:          *appt.Code,
		ExpiresAt:     *appt.CodeExpiresAt,
		LocalDate:     appt.LocalDate,
		LocalTime:     appt.LocalTime,
		TimeZone:      appt.TimeZone,
		Reissued:      reissued,
	})
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	// the event log must not fail a transition that already committed
	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

func reserveOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
