package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveBooking("success", "", 20*time.Millisecond)
	m.ObserveBooking("error", "conflict", 5*time.Millisecond)
	m.ObserveBooking("error", "conflict", 5*time.Millisecond)
	m.ObserveSlots(10, 4)
	m.ObserveCache("hit")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsTotal.WithLabelValues("success", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BookingsTotal.WithLabelValues("error", "conflict")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SlotsGenerated.WithLabelValues("inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBooking("success", "", time.Second)
		m.ObserveSlots(1, 1)
		m.ObserveCache("miss")
		m.ObserveNotification("whatsapp", "sent")
		m.ObserveTransition("confirmed")
	})
}
