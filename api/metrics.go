package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paiviz_turns_total",
		Help: "Finished conversation turns by outcome.",
	},
		[]string{"outcome"},
	)

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paiviz_turn_duration_seconds",
		Help:    "Wall time of one conversation turn.",
		Buckets: prometheus.DefBuckets,
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paiviz_http_requests_total",
		Help: "HTTP requests by route and status code.",
	},
		[]string{"route", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paiviz_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"route"},
	)
)

// observeTurn records one finished turn. Outcome is "success", the
// recorded error kind, or "canceled".
func observeTurn(outcome string, elapsed time.Duration) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(elapsed.Seconds())
}

// metricsMiddleware counts and times requests per matched chi route.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
