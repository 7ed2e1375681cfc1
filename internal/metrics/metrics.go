// Package metrics объявляет Prometheus-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal считает HTTP-запросы по методу, маршруту и статусу.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoicer",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration измеряет длительность HTTP-запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "invoicer",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// InvoiceOperations считает операции над счетами по типу и результату.
	InvoiceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "invoicer",
		Name:      "invoice_operations_total",
		Help:      "Invoice operations by kind and outcome.",
	}, []string{"op", "outcome"})
)

// Outcome возвращает метку результата операции.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
