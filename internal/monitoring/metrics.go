package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	OrdersCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Orders committed by checkout, by payment method",
		},
		[]string{"payment_method"},
	)

	OrdersRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_rejected_total",
			Help: "Checkout attempts rejected before or during the order transaction",
		},
		[]string{"reason"},
	)

	// OrderValue is observed in VND.
	OrderValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_order_final_amount_vnd",
			Help:    "Final amount of created orders",
			Buckets: []float64{50e3, 100e3, 200e3, 500e3, 1e6, 2e6, 5e6, 10e6},
		},
	)

	OrdersCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_orders_cancelled_total",
			Help: "Orders cancelled, by origin (customer, admin, expiry)",
		},
		[]string{"origin"},
	)

	CommissionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_commissions_created_total",
			Help: "Affiliate commission rows created, by level",
		},
		[]string{"level"},
	)

	JobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_job_runs_total",
			Help: "Scheduled job runs, by job and result",
		},
		[]string{"job", "result"},
	)
)
