package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-reservation/internal/patient"
)

// CodeNotice carries a freshly issued one-time code to the patient.
type CodeNotice struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	Code          string    `json:"code"`
	ExpiresAt     time.Time `json:"expires_at"`
	LocalDate     string    `json:"local_date"`
	LocalTime     string    `json:"local_time"`
	TimeZone      string    `json:"time_zone"`
	Reissued      bool      `json:"reissued"`
}

// Message is a notice addressed to a resolved recipient.
type Message struct {
	Notice    CodeNotice      `json:"notice"`
	Recipient patient.Contact `json:"recipient"`
}

// Notifier delivers one message. Implementations can be swapped (SendGrid, Redis, log)
// without changing callers.
type Notifier interface {
	NotifyCode(ctx context.Context, msg Message) error
}

// ContactLookup resolves a patient id to delivery details.
type ContactLookup interface {
	Contact(ctx context.Context, id uuid.UUID) (patient.Contact, error)
}

// LogNotifier logs instead of delivering. Codes are only printed at debug level.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyCode(_ context.Context, msg Message) error {
	n.logger.Info().
		Str("appointment_id", msg.Notice.AppointmentID.String()).
		Str("to", msg.Recipient.Email).
		Time("expires_at", msg.Notice.ExpiresAt).
		Msg("log notifier: would send confirmation code")
	n.logger.Debug().
		Str("appointment_id", msg.Notice.AppointmentID.String()).
		Str("code", msg.Notice.Code).
		Msg("confirmation code")
	return nil
}
