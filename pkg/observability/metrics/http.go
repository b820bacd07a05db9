package metrics

import (
    "net/http"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: namespace,
        Subsystem: "http",
        Name:      "requests_total",
        Help:      "Total number of management HTTP requests",
    }, []string{"op", "status"})

    RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: namespace,
        Subsystem: "http",
        Name:      "request_duration_seconds",
        Help:      "Latency of management HTTP requests",
        Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
    }, []string{"op"})

    InFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
        Namespace: namespace,
        Subsystem: "http",
        Name:      "in_flight_requests",
        Help:      "Current number of in-flight management HTTP requests",
    }, []string{"op"})
)

type statusWriter struct {
    http.ResponseWriter
    status int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps next so that its requests are counted and timed under op.
func Instrument(op string, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
        start := time.Now()

        InFlight.WithLabelValues(op).Inc()
        defer InFlight.WithLabelValues(op).Dec()

        next.ServeHTTP(sw, r)

        class := strconv.Itoa(sw.status/100) + "xx"
        RequestsTotal.WithLabelValues(op, class).Inc()
        RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
    })
}
