package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/pediatric-clinic-booking/internal/booking"
)

// BookingMetrics exposes counters/histograms for the booking conversation.
type BookingMetrics struct {
	transitionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	conflictsTotal   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking conversation operations by outcome",
		}, []string{"operation", "outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Booking service calls by status",
		}, []string{"status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of directory and booking calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "session",
			Name:      "conflicts_total",
			Help:      "Conversation operations rejected by the lock or revision check",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.bookingsTotal, m.upstreamLatency, m.conflictsTotal)
	return m
}

// ObserveTransition records one engine operation. The outcome is "ok" or
// the engine error kind.
func (m *BookingMetrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(booking.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.transitionsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveUpstreamLatency(call string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(call).Observe(seconds)
}

func (m *BookingMetrics) ObserveConflict(reason string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(reason).Inc()
}

// InstrumentDirectory times every directory call.
func InstrumentDirectory(next booking.Directory, m *BookingMetrics) booking.Directory {
	return &directory{next: next, m: m}
}

// InstrumentBooker times booking calls and counts their outcome.
func InstrumentBooker(next booking.Booker, m *BookingMetrics) booking.Booker {
	return &booker{next: next, m: m}
}

type directory struct {
	next booking.Directory
	m    *BookingMetrics
}

func (d *directory) ListChildren(ctx context.Context, guardianID string) ([]booking.Child, error) {
	start := time.Now()
	children, err := d.next.ListChildren(ctx, guardianID)
	d.m.ObserveUpstreamLatency("list_children", time.Since(start).Seconds())
	return children, err
}

func (d *directory) FreeSlots(ctx context.Context, date time.Time) ([]string, error) {
	start := time.Now()
	slots, err := d.next.FreeSlots(ctx, date)
	d.m.ObserveUpstreamLatency("free_slots", time.Since(start).Seconds())
	return slots, err
}

type booker struct {
	next booking.Booker
	m    *BookingMetrics
}

func (b *booker) CreateBooking(ctx context.Context, req booking.Request) (booking.Confirmation, error) {
	start := time.Now()
	conf, err := b.next.CreateBooking(ctx, req)
	b.m.ObserveUpstreamLatency("create_booking", time.Since(start).Seconds())
	if err != nil {
		b.m.ObserveBooking("failed")
	} else {
		b.m.ObserveBooking("booked")
	}
	return conf, err
}
