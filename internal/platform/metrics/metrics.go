// Package metrics exposes the clinic's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinic_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	// Record metrics
	recordsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_records_created_total",
			Help: "Clinical records created, by entity",
		},
		[]string{"entity"},
	)

	recordsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_records_deleted_total",
			Help: "Clinical records deleted, by entity, including cascaded rows",
		},
		[]string{"entity"},
	)

	cascadeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_cascade_failures_total",
			Help: "Deletes whose dependent file cleanup did not complete",
		},
		[]string{"entity"},
	)

	caseIDRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_case_id_retries_total",
			Help: "Generated case codes that collided and were retried",
		},
	)

	// Ledger metrics
	paymentsAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinic_payments_amount_total",
			Help: "Sum of amounts paid across recorded payments",
		},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinic_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordCreated(entity string) {
	recordsCreated.WithLabelValues(entity).Inc()
}

func RecordDeleted(entity string, n int) {
	if n > 0 {
		recordsDeleted.WithLabelValues(entity).Add(float64(n))
	}
}

func CascadeFailure(entity string) {
	cascadeFailures.WithLabelValues(entity).Inc()
}

func CaseIDRetry() {
	caseIDRetries.Inc()
}

func PaymentRecorded(amount float64) {
	if amount > 0 {
		paymentsAmount.Add(amount)
	}
}

func LoginAttempt(ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	loginAttempts.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
