// Package metrics exposes the Prometheus collectors of the editor service.
// Collectors are registered on an injected registry so tests can use a fresh
// one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

const namespace = "backdrop"

// Editor records controller and segmentation measurements. It satisfies
// editor.Observer.
type Editor struct {
	IntentsTotal         *prometheus.CounterVec
	IntentDuration       *prometheus.HistogramVec
	SegmentationDuration *prometheus.HistogramVec
	BreakerState         prometheus.Gauge
	BreakerTransitions   *prometheus.CounterVec
	AccessDenied         prometheus.Counter
}

// NewEditor creates and registers editor metrics on reg.
func NewEditor(reg prometheus.Registerer) *Editor {
	m := &Editor{
		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "intents_total",
			Help:      "Handled intents by intent and outcome kind.",
		}, []string{"intent", "kind"}),
		IntentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "intent_duration_seconds",
			Help:      "Duration of intent handling in seconds.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"intent"}),
		SegmentationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "segmentation",
			Name:      "duration_seconds",
			Help:      "Duration of segmentation engine calls in seconds.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 5, 10, 30, 60},
		}, []string{"status"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "segmentation",
			Name:      "circuit_breaker_state",
			Help:      "Current circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "segmentation",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Circuit breaker state transitions by new state.",
		}, []string{"state"}),
		AccessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operator",
			Name:      "access_denied_total",
			Help:      "Rejected operator requests.",
		}),
	}
	reg.MustRegister(m.IntentsTotal, m.IntentDuration, m.SegmentationDuration,
		m.BreakerState, m.BreakerTransitions, m.AccessDenied)
	return m
}

func (m *Editor) IntentHandled(intent, kind string, d time.Duration) {
	m.IntentsTotal.WithLabelValues(intent, kind).Inc()
	m.IntentDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (m *Editor) SegmentationDone(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SegmentationDuration.WithLabelValues(status).Observe(d.Seconds())
}

// BreakerStateChanged is suitable as segment.BreakerSettings.OnStateChange.
func (m *Editor) BreakerStateChanged(_ string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.BreakerState.Set(v)
	m.BreakerTransitions.WithLabelValues(to.String()).Inc()
}

// RegisterActiveSessions exposes the session count reported by fn.
func RegisterActiveSessions(reg prometheus.Registerer, fn func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "editor",
		Name:      "active_sessions",
		Help:      "Editing sessions currently held in memory.",
	}, func() float64 { return float64(fn()) }))
}

// HTTP holds Prometheus metrics for HTTP request tracking.
type HTTP struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlight        prometheus.Gauge
}

// NewHTTP creates and registers HTTP metrics on reg.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of HTTP requests currently being processed.",
		}),
	}
	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlight)
	return m
}

// Middleware records request metrics labelled by the chi route pattern.
func (m *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		m.RequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
	})
}
