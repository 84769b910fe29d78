package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"rently/internal/domain"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rently", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rently", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rently", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	Bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rently", Name: "bookings_total", Help: "Booking operations by outcome."},
		[]string{"op", "outcome"}, // op: create|cancel; outcome: ok or an error kind
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rently", Name: "workflow_transitions_total", Help: "Workflow transitions."},
		[]string{"workflow", "action", "outcome"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rently", Name: "events_published_total", Help: "Published domain events."},
		[]string{"event"},
	)
	HandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rently", Name: "event_handler_failures_total", Help: "Event handler faults."},
		[]string{"event"},
	)
)

// Serve starts a dedicated metrics listener on addr. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, CacheEvents, Bookings, Transitions, EventsPublished, HandlerFailures)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveBooking(op string, err error) {
	Bookings.WithLabelValues(op, Outcome(err)).Inc()
}

func ObserveTransition(workflow, action string, err error) {
	Transitions.WithLabelValues(workflow, action, Outcome(err)).Inc()
}

func ObservePublish(event string, failures int) {
	EventsPublished.WithLabelValues(event).Inc()
	if failures > 0 {
		HandlerFailures.WithLabelValues(event).Add(float64(failures))
	}
}

// Outcome labels an operation result with "ok" or the error's kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}
