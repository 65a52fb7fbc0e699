package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/slot-reservation/internal/metrics"
)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher delivers code notices in the background. Enqueue never blocks the
// reservation path; a full queue drops the notice and the patient can request a reissue.
type Dispatcher struct {
	notifier Notifier
	contacts ContactLookup
	cfg      DispatcherConfig
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan CodeNotice
	wg     sync.WaitGroup
}

func NewDispatcher(n Notifier, contacts ContactLookup, cfg DispatcherConfig, logger zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		notifier: n,
		contacts: contacts,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		queue:    make(chan CodeNotice, cfg.QueueSize),
	}
}

// Start launches the workers. They exit when Close drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for notice := range d.queue {
				d.deliver(ctx, notice)
			}
		}()
	}
}

// Enqueue reports whether the notice was accepted.
func (d *Dispatcher) Enqueue(notice CodeNotice) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- notice:
		return true
	default:
		d.metrics.ObserveNotification("dropped")
		d.logger.Warn().
			Str("appointment_id", notice.AppointmentID.String()).
			Msg("notification queue full, dropping code notice")
		return false
	}
}

// Close stops accepting notices and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, notice CodeNotice) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SendTimeout)
	defer cancel()

	contact, err := d.contacts.Contact(sendCtx, notice.PatientID)
	if err != nil {
		d.metrics.ObserveNotification("failed")
		d.logger.Error().Err(err).
			Str("appointment_id", notice.AppointmentID.String()).
			Str("patient_id", notice.PatientID.String()).
			Msg("resolve notification recipient")
		return
	}

	if err := d.notifier.NotifyCode(sendCtx, Message{Notice: notice, Recipient: contact}); err != nil {
		d.metrics.ObserveNotification("failed")
		d.logger.Error().Err(err).
			Str("appointment_id", notice.AppointmentID.String()).
			Msg("deliver confirmation code")
		return
	}
	d.metrics.ObserveNotification("sent")
}
