package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStaleVersion means a compare-and-set lost to a concurrent writer. It never leaves the package.
var ErrStaleVersion = errors.New("appointment version is stale")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Claim inserts a tentative appointment as one conditional write. It fails with
	// ErrSlotTaken when a non-cancelled appointment already holds (provider, instant).
	Claim(ctx context.Context, appt *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Availability
	ListClaimedInstants(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]time.Time, error)

	// SaveTransition persists status and code fields if the stored version still
	// equals appt.Version, bumping it. Otherwise ErrStaleVersion.
	SaveTransition(ctx context.Context, appt *Appointment) (*Appointment, error)

	// Expiry sweep
	FindExpiredTentative(ctx context.Context, now time.Time, limit int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
