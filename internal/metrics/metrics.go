// Package metrics provides Prometheus metrics for the Quarry client.
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
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_client_requests_total",
			Help: "Total number of REST requests issued",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quarry_client_request_duration_seconds",
			Help:    "REST request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	bulkOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_client_bulk_operations_total",
			Help: "Total number of bulk operations issued",
		},
		[]string{"op"},
	)

	bulkOpResources = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_client_bulk_resources_total",
			Help: "Total number of resources covered by bulk operations",
		},
		[]string{"op"},
	)

	pickedResources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quarry_client_picked_resources",
			Help: "Number of resources currently picked for move/copy",
		},
	)

	busEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_client_bus_events_total",
			Help: "Total number of events published on the in-process bus",
		},
		[]string{"type"},
	)
)

// RecordRequest records a completed REST request. A status of 0 means the
// request never reached the server.
func RecordRequest(method, route string, status int, d time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordBulkOp records a successful bulk operation covering n resources.
func RecordBulkOp(op string, n int) {
	bulkOpsTotal.WithLabelValues(op).Inc()
	bulkOpResources.WithLabelValues(op).Add(float64(n))
}

// SetPickedResources updates the picked-resources gauge.
func SetPickedResources(n int) {
	pickedResources.Set(float64(n))
}

// RecordBusEvent records one published bus event.
func RecordBusEvent(eventType string) {
	busEventsTotal.WithLabelValues(eventType).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a metrics HTTP server on addr. It blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
