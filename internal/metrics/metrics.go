// Package metrics declares the service's Prometheus collectors. They are
// registered on the default registry at init and served by Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "status"})
	HTTPRequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convoy_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 3000},
	}, []string{"route"})

	PositionWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_position_writes_total",
		Help: "Position writes by result (ok, failed)",
	}, []string{"result"})
	PositionSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "convoy_position_skipped_total",
		Help: "Device updates held back by the movement gate",
	})

	FeedSubscriptionsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "convoy_feed_subscriptions_active",
		Help: "Live nearby subscriptions by feed",
	}, []string{"feed"})
	FeedWindows = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "convoy_feed_windows",
		Help:    "Geohash windows per subscription",
		Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9},
	}, []string{"feed"})
	FeedEmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_feed_emissions_total",
		Help: "Result sets emitted by nearby subscriptions",
	}, []string{"feed"})
	FeedStreamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_feed_stream_errors_total",
		Help: "Window streams that terminated with an error",
	}, []string{"feed"})
	FeedSnapshotTimeoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "convoy_feed_snapshot_timeouts_total",
		Help: "One-shot nearby queries answered before every window synced",
	}, []string{"feed"})

	SOSTriggeredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "convoy_sos_triggered_total",
		Help: "SOS alerts created",
	})
	SOSResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "convoy_sos_resolved_total",
		Help: "SOS alerts resolved",
	})
	RidesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "convoy_rides_created_total",
		Help: "Ride events created",
	})
)

func init() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDurationMs)
	prometheus.MustRegister(PositionWritesTotal)
	prometheus.MustRegister(PositionSkippedTotal)
	prometheus.MustRegister(FeedSubscriptionsActive)
	prometheus.MustRegister(FeedWindows)
	prometheus.MustRegister(FeedEmissionsTotal)
	prometheus.MustRegister(FeedStreamErrorsTotal)
	prometheus.MustRegister(FeedSnapshotTimeoutsTotal)
	prometheus.MustRegister(SOSTriggeredTotal)
	prometheus.MustRegister(SOSResolvedTotal)
	prometheus.MustRegister(RidesCreatedTotal)
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler { return promhttp.Handler() }
