package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	gatewayCalls    *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	checkoutOutcome *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
}

// NewPrometheusRecorder registers the checkout metrics on the provided registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	gatewayCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtc",
			Name:      "gateway_calls_total",
			Help:      "Outbound payment gateway calls by result.",
		},
		[]string{"provider", "operation", "result"},
	)
	gatewayLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qtc",
			Name:      "gateway_latency_seconds",
			Help:      "Outbound payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
	checkoutOutcome := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtc",
			Name:      "checkout_outcomes_total",
			Help:      "Checkout attempts reaching a terminal state.",
		},
		[]string{"provider", "outcome"},
	)
	webhooks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qtc",
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by processing result.",
		},
		[]string{"provider", "result"},
	)

	if reg != nil {
		reg.MustRegister(gatewayCalls, gatewayLatency, checkoutOutcome, webhooks)
	}

	return &PrometheusRecorder{
		gatewayCalls:    gatewayCalls,
		gatewayLatency:  gatewayLatency,
		checkoutOutcome: checkoutOutcome,
		webhooks:        webhooks,
	}
}

func (p *PrometheusRecorder) ObserveGatewayCall(provider, operation string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.gatewayCalls.WithLabelValues(normalizeLabel(provider), operation, result).Inc()
	p.gatewayLatency.WithLabelValues(normalizeLabel(provider), operation).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncCheckoutOutcome(provider, outcome string) {
	p.checkoutOutcome.WithLabelValues(normalizeLabel(provider), outcome).Inc()
}

func (p *PrometheusRecorder) IncWebhook(provider, result string) {
	p.webhooks.WithLabelValues(normalizeLabel(provider), result).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
