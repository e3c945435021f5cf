// Package metrics registers the Prometheus collectors exposed at
// /metrics: pipeline throughput, processing lag, backpressure
// mode, and the current count of HOT tokens.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransactionsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_transactions_processed_total",
		Help: "Total raw transactions pulled off the stream and parsed.",
	})

	SwapsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_swaps_detected_total",
		Help: "Total transactions classified as a swap with confidence above the minimum threshold.",
	})

	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_duplicates_dropped_total",
		Help: "Total transactions dropped by the signature dedup filter.",
	})

	TriggersFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_triggers_fired_total",
		Help: "Total trigger matches, labeled by trigger name.",
	}, []string{"trigger"})

	AlertsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_alerts_delivered_total",
		Help: "Total alert delivery attempts, labeled by channel and outcome.",
	}, []string{"channel", "outcome"})

	HotTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_hot_tokens",
		Help: "Current count of mints in the HOT state.",
	})

	ProcessingLagSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_processing_lag_seconds",
		Help: "Seconds between a transaction's block time and when it was processed.",
	})

	StreamLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_stream_length",
		Help: "Current length of the ingest Redis stream.",
	})

	DegradationMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_degradation_mode",
		Help: "Current backpressure mode: 0=normal, 1=degraded, 2=critical.",
	})

	CircuitBreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_enrichment_circuit_open",
		Help: "1 if the enrichment circuit breaker is currently open, else 0.",
	})

	EnrichmentCreditsUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_enrichment_credits_used",
		Help: "Enrichment RPC credits consumed today.",
	})
)

// SetDegradationMode maps a backpressure mode string to the gauge's
// numeric encoding.
func SetDegradationMode(mode string) {
	switch mode {
	case "critical":
		DegradationMode.Set(2)
	case "degraded":
		DegradationMode.Set(1)
	default:
		DegradationMode.Set(0)
	}
}
