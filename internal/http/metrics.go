package httpx

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// registerOrReuse registers c and returns it, or returns the collector a
// previous router already registered under the same descriptor. Routers
// built in the same process share one set of series.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	return c
}

// initMetrics registers request counters labelled by mux route template and
// the rate-limit rejection counter labelled by route and limiter scope.
func (r *Router) initMetrics() {
	r.metricsOnce.Do(func() {
		labels := []string{"method", "route", "status"}
		r.requestTotal = registerOrReuse(r.settings.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamhub",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Team API requests by route template and status.",
		}, labels))
		r.requestLatency = registerOrReuse(r.settings.Registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teamhub",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Team API handler latency, store round trips included.",
			Buckets:   latencyBuckets,
		}, labels))
		r.rateLimitHits = registerOrReuse(r.settings.Registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teamhub",
			Subsystem: "api",
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the per-route limiter, by scope (user or ip).",
		}, []string{"route", "scope"}))
		r.metricsInitialized = true
	})
}

func (r *Router) recordRequestMetrics(method, route string, status int, duration time.Duration) {
	if !r.metricsInitialized {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(duration.Seconds())
}

func (r *Router) recordRateLimitHit(route, scope string) {
	if !r.metricsInitialized {
		return
	}
	r.rateLimitHits.With(prometheus.Labels{"route": route, "scope": scope}).Inc()
}
