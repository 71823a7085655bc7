// Package metrics defines prometheus metric types and provides convenience
// methods to add accounting to the connection, binding, and worker layers.
//
// When defining new operations or metrics, these are helpful values to track:
//  - things coming into or go out of the system: packets, frames, streams.
//  - the success or error status of any of the above.
//  - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsSentTotal counts packets handed to the datapath, labeled by
	// encryption level.
	PacketsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_packets_sent_total",
			Help: "Total number of QUIC packets sent, by encryption level.",
		}, []string{"level"})

	// PacketsReceivedTotal counts packets successfully decrypted and
	// processed, labeled by encryption level.
	PacketsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_packets_received_total",
			Help: "Total number of QUIC packets received and processed, by encryption level.",
		}, []string{"level"})

	// PacketsDroppedTotal counts packets discarded before or during
	// processing, labeled by the reason (e.g. "decrypt_failure",
	// "unknown_connection_id", "malformed").
	PacketsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_packets_dropped_total",
			Help: "Total number of received QUIC packets dropped, by reason.",
		}, []string{"reason"})

	// BytesInFlightHistogram tracks the congestion controller's
	// BytesInFlight sampled on every ACK, per controller algorithm.
	BytesInFlightHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiccore_bytes_in_flight_histogram",
			Help:    "Bytes in flight at ACK processing time, by congestion controller.",
			Buckets: prometheus.ExponentialBuckets(1200, 2, 16),
		}, []string{"algorithm"})

	// CongestionWindowHistogram tracks the congestion window in bytes
	// sampled on every window change, per controller algorithm.
	CongestionWindowHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quiccore_congestion_window_histogram",
			Help:    "Congestion window size distribution (bytes), by congestion controller.",
			Buckets: prometheus.ExponentialBuckets(1200, 2, 16),
		}, []string{"algorithm"})

	// SmoothedRTTHistogram tracks the loss detector's smoothed RTT
	// estimate, sampled on every ACK that updates it.
	SmoothedRTTHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "quiccore_smoothed_rtt_seconds_histogram",
			Help: "Smoothed RTT distribution (seconds).",
			Buckets: []float64{
				0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		},
	)

	// LostPacketsTotal counts packets declared lost, labeled by the
	// detection trigger ("time_threshold", "packet_threshold", "pto").
	LostPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_lost_packets_total",
			Help: "Total number of packets declared lost, by detection trigger.",
		}, []string{"trigger"})

	// PersistentCongestionTotal counts transitions into persistent
	// congestion, per connection's congestion controller.
	PersistentCongestionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiccore_persistent_congestion_total",
			Help: "Total number of persistent congestion events detected.",
		},
	)

	// StreamsOpenedTotal counts streams created (locally or by the peer),
	// labeled by type ("client-bidi", "server-bidi", "client-unidi",
	// "server-unidi").
	StreamsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_streams_opened_total",
			Help: "Total number of streams opened, by stream type.",
		}, []string{"type"})

	// ActiveConnectionsGauge tracks the number of connections a binding
	// currently has registered in its lookup table.
	ActiveConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiccore_active_connections",
			Help: "Number of connections currently registered with the binding.",
		},
	)

	// WorkerQueueDepthHistogram tracks how many operations are queued for
	// a connection's worker at the moment a new operation is enqueued.
	WorkerQueueDepthHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiccore_worker_queue_depth_histogram",
			Help:    "Operation queue depth at enqueue time.",
			Buckets: prometheus.LinearBuckets(0, 4, 16),
		},
	)

	// OperationProcessingTimeHistogram tracks how long the worker loop
	// spends executing a single operation, by operation type.
	OperationProcessingTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "quiccore_operation_processing_time_seconds_histogram",
			Help: "Per-operation processing latency distribution (seconds), by operation type.",
			Buckets: []float64{
				0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
			},
		}, []string{"operation"})

	// RetryTokensIssuedTotal counts stateless Retry tokens minted by a
	// binding in response to suspected amplification or spoofing.
	RetryTokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiccore_retry_tokens_issued_total",
			Help: "Total number of Retry tokens issued.",
		},
	)

	// MTUDiscoveredHistogram tracks the final MTU each path-MTU-discovery
	// search converges on.
	MTUDiscoveredHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiccore_mtu_discovered_bytes_histogram",
			Help:    "Path MTU discovered per path.",
			Buckets: []float64{1200, 1350, 1400, 1450, 1472, 1500, 4000, 9000},
		},
	)

	// ErrorCount measures the number of errors encountered anywhere in
	// the connection engine.
	// Provides metrics:
	//    quiccore_error_total
	// Example usage:
	//    metrics.ErrorCount.With(prometheus.Labels{"type": "decrypt_failure"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_error_total",
			Help: "The total number of errors encountered.",
		}, []string{"type"})

	// ConnectionEventsTotal counts lifecycle events published on the
	// eventsocket, by kind ("open" or "close").
	ConnectionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiccore_connection_events_total",
			Help: "Total number of connection lifecycle events published, by kind.",
		}, []string{"kind"})
)

// init() prints a log message to let the user know that the package has
// been loaded and the metrics registered. The metrics are auto-registered,
// which means they are registered as soon as this package is loaded, and
// the exact time this occurs (and whether this occurs at all in a given
// context) can be opaque.
func init() {
	log.Println("Prometheus metrics in quic-core.metrics are registered.")
}
