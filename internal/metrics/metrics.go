package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the reservation core. A nil *Metrics is a no-op.
type Metrics struct {
	reservations   *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	cancellations  *prometheus.CounterVec
	codesIssued    prometheus.Counter
	sweepExpired   prometheus.Counter
	notifications  *prometheus.CounterVec
	reserveLatency prometheus.Histogram
	lockBypassed   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "reservation",
			Name:      "attempts_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "confirmation",
			Name:      "verifications_total",
			Help:      "Code verifications by outcome",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "lifecycle",
			Name:      "cancellations_total",
			Help:      "Cancellations by actor",
		}, []string{"actor"}),
		codesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "confirmation",
			Name:      "codes_issued_total",
			Help:      "One-time codes issued, including reissues",
		}),
		sweepExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "sweep",
			Name:      "expired_total",
			Help:      "Tentative appointments released by the expiry sweep",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Code notifications by status",
		}, []string{"status"}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slots",
			Subsystem: "reservation",
			Name:      "latency_seconds",
			Help:      "Latency of reserve calls",
			Buckets:   prometheus.DefBuckets,
		}),
		lockBypassed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "slots",
			Subsystem: "reservation",
			Name:      "lock_bypassed_total",
			Help:      "Claims made without the Redis slot lock because it was unreachable",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservations, m.verifications, m.cancellations, m.codesIssued,
		m.sweepExpired, m.notifications, m.reserveLatency, m.lockBypassed)
	return m
}

func (m *Metrics) ObserveReservation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	m.reserveLatency.Observe(seconds)
}

func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCancellation(actor string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(actor).Inc()
}

func (m *Metrics) ObserveCodeIssued() {
	if m == nil {
		return
	}
	m.codesIssued.Inc()
}

func (m *Metrics) ObserveSweepExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepExpired.Add(float64(n))
}

func (m *Metrics) ObserveNotification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveLockBypassed() {
	if m == nil {
		return
	}
	m.lockBypassed.Inc()
}
