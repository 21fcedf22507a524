package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ClicksBilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_clicks_billed_total",
			Help: "Total number of clicks billed",
		},
		[]string{"click_type"},
	)

	ClicksRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_clicks_rejected_total",
			Help: "Total number of click billing rejections",
		},
		[]string{"reason"},
	)

	DepositsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_deposits_completed_total",
			Help: "Total number of deposits reconciled to completion",
		},
	)

	DepositAmountCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_deposit_amount_cents_total",
			Help: "Total confirmed deposit volume in cents",
		},
	)
)
