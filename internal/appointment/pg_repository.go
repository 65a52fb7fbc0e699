package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// activeSlotIndex is the partial unique index enforcing slot exclusivity.
const activeSlotIndex = "appointments_active_slot_uq"

const uniqueViolation = "23505"

const appointmentColumns = `id, provider_id, specialty_id, location_id, patient_id, scheduled_at,
	local_date, local_time, time_zone, status, code, code_expires_at, is_verified, reason,
	version, created_at, updated_at`

// db is the subset of *pgxpool.Pool the repository uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool db
}

func NewPgRepository(pool db) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var code *string
	var codeExpiresAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.SpecialtyID,
		&a.LocationID,
		&a.PatientID,
		&a.ScheduledAt,
		&a.LocalDate,
		&a.LocalTime,
		&a.TimeZone,
		&a.Status,
		&code,
		&codeExpiresAt,
		&a.IsVerified,
		&a.Reason,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ScheduledAt = a.ScheduledAt.UTC()
	a.Code = code
	a.CodeExpiresAt = codeExpiresAt
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isActiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeSlotIndex
}

// Interface methods

func (r *PgRepository) Claim(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, specialty_id, location_id, patient_id, scheduled_at,
			local_date, local_time, time_zone, status, code, code_expires_at, is_verified, reason,
			version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'tentative', $10, $11, false, $12, 1, now(), now())
		ON CONFLICT (provider_id, scheduled_at) WHERE status <> 'cancelled' DO NOTHING
		RETURNING `+appointmentColumns,
		appt.ID, appt.ProviderID, appt.SpecialtyID, appt.LocationID, appt.PatientID, appt.ScheduledAt,
		appt.LocalDate, appt.LocalTime, appt.TimeZone, appt.Code, appt.CodeExpiresAt, appt.Reason)

	created, err := scanAppointment(row)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		// DO NOTHING returned no row: the slot is held by someone else
		return nil, ErrSlotTaken
	case isActiveSlotViolation(err):
		return nil, ErrSlotTaken
	case err != nil:
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListClaimedInstants(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status <> 'cancelled'
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []time.Time
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		claimed = append(claimed, at.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *PgRepository) SaveTransition(ctx context.Context, appt *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    code = $4,
		    code_expires_at = $5,
		    is_verified = $6,
		    version = version + 1,
		    updated_at = now()
		WHERE id = $1
		  AND version = $2
		RETURNING `+appointmentColumns,
		appt.ID, appt.Version, appt.Status, appt.Code, appt.CodeExpiresAt, appt.IsVerified)

	saved, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStaleVersion
	}
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return saved, nil
}

func (r *PgRepository) FindExpiredTentative(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'tentative'
		  AND code_expires_at IS NOT NULL
		  AND code_expires_at < $1
		ORDER BY code_expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
