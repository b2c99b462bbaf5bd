package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	credentialsIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_credentials_issued_total",
			Help: "Bearer credentials minted, by class.",
		},
		[]string{"class"},
	)

	credentialsRevokedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_credentials_revoked_total",
			Help: "Credentials revoked before natural expiry, by reason.",
		},
		[]string{"reason"},
	)

	rotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_rotations_total",
		Help: "Successful refresh-token rotations.",
	})

	secondFactorChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_second_factor_checks_total",
			Help: "TOTP verifications by outcome.",
		},
		[]string{"result"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		loginsTotal,
		credentialsIssuedTotal,
		credentialsRevokedTotal,
		rotationsTotal,
		secondFactorChecksTotal,
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordLogin counts a login attempt outcome: success, failure,
// second_factor_required or throttled.
func RecordLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// RecordCredentialIssued counts a minted credential by class.
func RecordCredentialIssued(class string) {
	credentialsIssuedTotal.WithLabelValues(class).Inc()
}

// RecordCredentialRevoked counts an explicit revocation by reason.
func RecordCredentialRevoked(reason string) {
	credentialsRevokedTotal.WithLabelValues(reason).Inc()
}

// RecordRotation counts a successful refresh rotation.
func RecordRotation() {
	rotationsTotal.Inc()
}

// RecordSecondFactorCheck counts a TOTP verification outcome.
func RecordSecondFactorCheck(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	secondFactorChecksTotal.WithLabelValues(result).Inc()
}

// Instrument wraps an http.Handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
