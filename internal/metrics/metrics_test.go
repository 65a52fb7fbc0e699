package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveReservation("created", 0.01)
	m.ObserveReservation("conflict", 0.02)
	m.ObserveReservation("conflict", 0.02)
	m.ObserveVerification("mismatch")
	m.ObserveCancellation("patient")
	m.ObserveCodeIssued()
	m.ObserveSweepExpired(3)
	m.ObserveSweepExpired(0)
	m.ObserveNotification("failed")
	m.ObserveLockBypassed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservations.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("mismatch")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codesIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockBypassed))
}

func TestNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveReservation("created", 0.1)
	m.ObserveVerification("confirmed")
	m.ObserveCancellation("system")
	m.ObserveCodeIssued()
	m.ObserveSweepExpired(1)
	m.ObserveNotification("sent")
	m.ObserveLockBypassed()
}
