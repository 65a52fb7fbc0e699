package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-reservation/internal/appointment"
	"github.com/hackgods/slot-reservation/internal/validation"
)

type PatientRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type CreateAppointmentRequest struct {
	ProviderID  string          `json:"provider_id" validate:"required,uuid"`
	ScheduledAt string          `json:"scheduled_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"` // RFC3339, any offset
	PatientID   string          `json:"patient_id,omitempty" validate:"required_without=Patient,omitempty,uuid"`
	Patient     *PatientRequest `json:"patient,omitempty"`
	Reason      string          `json:"reason,omitempty" validate:"max=1000"`
}

type VerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

type CancelRequest struct {
	Actor string `json:"actor,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	SpecialtyID   uuid.UUID  `json:"specialty_id"`
	LocationID    uuid.UUID  `json:"location_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	LocalDate     string     `json:"local_date"`
	LocalTime     string     `json:"local_time"`
	TimeZone      string     `json:"time_zone"`
	Status        string     `json:"status"`
	IsVerified    bool       `json:"is_verified"`
	CodeExpiresAt *time.Time `json:"code_expires_at,omitempty"`
	Code          string     `json:"code,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type StatusResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

type SlotResponse struct {
	At        time.Time `json:"at"`
	LocalTime string    `json:"local_time,omitempty"`
	Claimed   bool      `json:"claimed"`
}

type SlotsResponse struct {
	ProviderID uuid.UUID      `json:"provider_id"`
	Date       string         `json:"date"`
	Slots      []SlotResponse `json:"slots"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type ErrorResponse struct {
	Error   string                  `json:"error"`
	Details string                  `json:"details,omitempty"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment, exposeCode bool) AppointmentResponse {
	resp := AppointmentResponse{
		ID:            a.ID,
		ProviderID:    a.ProviderID,
		SpecialtyID:   a.SpecialtyID,
		LocationID:    a.LocationID,
		PatientID:     a.PatientID,
		ScheduledAt:   a.ScheduledAt,
		LocalDate:     a.LocalDate,
		LocalTime:     a.LocalTime,
		TimeZone:      a.TimeZone,
		Status:        string(a.Status),
		IsVerified:    a.IsVerified,
		CodeExpiresAt: a.CodeExpiresAt,
		Reason:        a.Reason,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
	if exposeCode && a.Code != nil {
		resp.Code = *a.Code
	}
	return resp
}
