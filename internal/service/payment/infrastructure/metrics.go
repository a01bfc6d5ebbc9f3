// internal/service/payment/infrastructure/metrics.go
package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal 按目标状态统计状态机迁移次数。
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "washa_payment_transitions_total",
		Help: "Payment attempt state transitions by resulting state.",
	}, []string{"state", "ambiguous"})

	// GatewayRequestsTotal 按操作和结果统计网关调用。
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "washa_gateway_requests_total",
		Help: "Requests issued to the mobile money gateway.",
	}, []string{"op", "outcome"})

	// ReconciliationsTotal 按处置结果统计对账。
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "washa_reconciliations_total",
		Help: "Reconciliation outcomes.",
	}, []string{"outcome"})

	// GatewayLatencySeconds 网关调用耗时。
	GatewayLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "washa_gateway_latency_seconds",
		Help:    "Latency of gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)
