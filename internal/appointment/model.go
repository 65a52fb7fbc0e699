package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-reservation/internal/timezone"
)

type AppointmentStatus string

const (
	StatusTentative AppointmentStatus = "tentative"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusTentative, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Actor is who asked for a cancellation.
type Actor string

const (
	ActorPatient  Actor = "patient"
	ActorProvider Actor = "provider"
	ActorStaff    Actor = "staff"
	ActorSystem   Actor = "system"
)

func (a Actor) Valid() bool {
	switch a {
	case ActorPatient, ActorProvider, ActorStaff, ActorSystem:
		return true
	}
	return false
}

// Appointment is the only mutable entity of the reservation core.
// LocalDate and LocalTime are derived from ScheduledAt and TimeZone; only setSchedule writes them.
type Appointment struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	SpecialtyID   uuid.UUID
	LocationID    uuid.UUID
	PatientID     uuid.UUID
	ScheduledAt   time.Time
	LocalDate     string
	LocalTime     string
	TimeZone      string
	Status        AppointmentStatus
	Code          *string
	CodeExpiresAt *time.Time
	IsVerified    bool
	Reason        string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (a *Appointment) setSchedule(n timezone.Normalizer, at time.Time) {
	a.ScheduledAt = at.UTC()
	a.TimeZone = n.Zone()
	a.LocalDate, a.LocalTime = n.Stamp(a.ScheduledAt)
}

func (a *Appointment) clearCode() {
	a.Code = nil
	a.CodeExpiresAt = nil
}

// codeLapsed reports whether a tentative appointment's code window has passed.
func (a *Appointment) codeLapsed(now time.Time) bool {
	return a.CodeExpiresAt == nil || now.After(*a.CodeExpiresAt)
}

// holdsSlot reports whether the appointment counts against slot exclusivity.
func (a *Appointment) holdsSlot() bool {
	return a.Status != StatusCancelled
}

func (a *Appointment) clone() *Appointment {
	c := *a
	if a.Code != nil {
		code := *a.Code
		c.Code = &code
	}
	if a.CodeExpiresAt != nil {
		exp := *a.CodeExpiresAt
		c.CodeExpiresAt = &exp
	}
	return &c
}

// SlotState is one bookable instant of a provider's day.
type SlotState struct {
	At        time.Time
	LocalTime string
	Claimed   bool
}

// ReserveRequest is the input of Reserve. PatientID is already resolved by the identity collaborator.
type ReserveRequest struct {
	ProviderID uuid.UUID
	At         time.Time
	PatientID  uuid.UUID
	Reason     string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
