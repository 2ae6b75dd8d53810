package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders committed by checkout",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of checkouts that did not commit",
	}, []string{"reason"})

	ReservationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reservation_latency_seconds",
		Help:    "Latency of the order reservation transaction, retries included",
		Buckets: prometheus.DefBuckets,
	})

	TxConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_tx_conflicts_total",
		Help: "Total number of transaction attempts that hit an optimistic conflict",
	})

	TxAbortedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_tx_aborted_total",
		Help: "Total number of transactions abandoned after exhausting retries",
	})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations",
	}, []string{"op", "result"})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Total number of order status transitions by target status",
	}, []string{"status"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Total number of outbox events published to the broker",
	})

	OutboxFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_failed_total",
		Help: "Total number of outbox events that failed to publish",
	})

	TokensRevokedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_tokens_revoked_total",
		Help: "Total number of account token revocations by cause",
	}, []string{"cause"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
