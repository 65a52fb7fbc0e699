package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridNotifier emails the code through the SendGrid API.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    zerolog.Logger
}

// NewSendGridNotifier returns nil when no API key is configured.
func NewSendGridNotifier(cfg SendGridConfig, logger zerolog.Logger) *SendGridNotifier {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.FromName == "" {
		cfg.FromName = "Appointments"
	}
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridNotifier) NotifyCode(ctx context.Context, msg Message) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if msg.Recipient.Email == "" {
		return fmt.Errorf("notify: recipient has no email")
	}

	subject, body := renderCodeEmail(msg.Notice)
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.Recipient.Name, msg.Recipient.Email)
	message := mail.NewSingleEmail(from, subject, to, body, body)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error().Int("status", response.StatusCode).Str("body", response.Body).Msg("sendgrid returned error status")
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info().
		Str("appointment_id", msg.Notice.AppointmentID.String()).
		Int("status", response.StatusCode).
		Msg("confirmation code sent via sendgrid")
	return nil
}

func renderCodeEmail(n CodeNotice) (string, string) {
	subject := "Your appointment confirmation code"
	body := fmt.Sprintf(
		"Your confirmation code is %s.\n\nIt confirms your appointment on %s at %s (%s) and expires at %s UTC.\n",
		n.Code, n.LocalDate, n.LocalTime, n.TimeZone, n.ExpiresAt.UTC().Format("15:04"),
	)
	return subject, body
}
