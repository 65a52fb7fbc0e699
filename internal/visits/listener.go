package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-reservation/internal/appointment"
)

const DefaultChannel = "visits.closed"

// ClosedEvent is published by the records system when a visit is finalized.
type ClosedEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	VisitID       string    `json:"visit_id,omitempty"`
}

type Completer interface {
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// Listener completes appointments as visit-closed events arrive on a Redis channel.
type Listener struct {
	client  *redis.Client
	channel string
	svc     Completer
	logger  zerolog.Logger
	ready   chan struct{}
}

func NewListener(client *redis.Client, channel string, svc Completer, logger zerolog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Listener{
		client:  client,
		channel: channel,
		svc:     svc,
		logger:  logger.With().Str("component", "visit_listener").Str("channel", channel).Logger(),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the subscription is confirmed.
func (l *Listener) Ready() <-chan struct{} { return l.ready }

// Run blocks until ctx is done or the subscription fails.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	close(l.ready)
	l.logger.Info().Msg("listening for closed visits")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("stopping visit listener")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("visit subscription closed")
			}
			l.Handle(ctx, []byte(msg.Payload))
		}
	}
}

// Handle processes one event payload. Bad payloads and rejected transitions are
// logged and dropped; the publisher does not expect a reply.
func (l *Listener) Handle(ctx context.Context, payload []byte) {
	var ev ClosedEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.AppointmentID == uuid.Nil {
		l.logger.Warn().Bytes("payload", payload).Msg("ignoring malformed visit event")
		return
	}

	log := l.logger.With().Str("appointment_id", ev.AppointmentID.String()).Str("visit_id", ev.VisitID).Logger()

	_, err := l.svc.Complete(ctx, ev.AppointmentID)
	switch {
	case err == nil:
		log.Info().Msg("appointment completed from closed visit")
	case errors.Is(err, appointment.ErrInvalidState), errors.Is(err, appointment.ErrNotFound):
		log.Warn().Err(err).Msg("visit event rejected")
	default:
		log.Error().Err(err).Msg("failed to complete appointment")
	}
}
