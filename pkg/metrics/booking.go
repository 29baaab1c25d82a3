package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics records booking protocol outcomes and contention signals.
type BookingMetrics struct {
	bookings   *prometheus.CounterVec
	casRetries prometheus.Counter
	cacheHits  prometheus.Counter
	cacheMiss  prometheus.Counter
}

// NewBookingMetrics registers the booking metrics on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_requests_total",
		Help: "Booking protocol outcomes by operation and result.",
	}, []string{"operation", "result"})
	casRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_cas_retries_total",
		Help: "Version conflicts retried by the seat adjustment protocol.",
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_cache_hits_total",
		Help: "Reservation list cache hits.",
	})
	cacheMiss := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_cache_misses_total",
		Help: "Reservation list cache misses.",
	})
	reg.MustRegister(bookings, casRetries, cacheHits, cacheMiss)
	return &BookingMetrics{
		bookings:   bookings,
		casRetries: casRetries,
		cacheHits:  cacheHits,
		cacheMiss:  cacheMiss,
	}
}

// ObserveBooking counts one protocol outcome, e.g. ("book", "success").
func (m *BookingMetrics) ObserveBooking(operation, result string) {
	if m == nil || m.bookings == nil {
		return
	}
	m.bookings.WithLabelValues(operation, result).Inc()
}

// ObserveCASRetry counts a version-conflict retry.
func (m *BookingMetrics) ObserveCASRetry() {
	if m == nil || m.casRetries == nil {
		return
	}
	m.casRetries.Inc()
}

// ObserveCacheHit counts a cache hit.
func (m *BookingMetrics) ObserveCacheHit() {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Inc()
}

// ObserveCacheMiss counts a cache miss.
func (m *BookingMetrics) ObserveCacheMiss() {
	if m == nil || m.cacheMiss == nil {
		return
	}
	m.cacheMiss.Inc()
}
