// Package prometheus provides Prometheus metrics for conversation streams
// and credential refresh.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "convostream"

var (
	// streamsActive is a gauge of currently open channels.
	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open stream channels",
		},
	)

	// streamConnectionsTotal is a counter of channel open attempts.
	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_connections_total",
			Help:      "Total number of stream open attempts",
		},
		[]string{"status"}, // status: success, unauthorized, channel_unavailable
	)

	// streamHandshakeDuration is a histogram of handshake duration.
	streamHandshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_handshake_duration_seconds",
			Help:      "Duration of stream handshakes in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// streamClosesTotal is a counter of channel closes by reason.
	streamClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_closes_total",
			Help:      "Total number of stream closes",
		},
		[]string{"reason", "interrupted"}, // reason: client, server, unauthorized, channel_unavailable
	)

	// framesTotal is a counter of applied inbound frames.
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of inbound frames applied to the message log",
		},
		[]string{"kind"}, // kind: text, metadata, end_of_stream
	)

	// protocolViolationsTotal is a counter of discarded frames.
	protocolViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Total number of inbound frames discarded as protocol violations",
		},
		[]string{"kind"},
	)

	// requestsTotal is a counter of prompts sent.
	requestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of prompts sent",
		},
	)

	// requestDuration is a histogram of time from prompt to end-of-stream.
	requestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration from prompt to end of stream in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// responseChunks is a histogram of text chunks per response.
	responseChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_chunks",
			Help:      "Number of text chunks per response",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// authRefreshTotal is a counter of refresh exchanges.
	authRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_refresh_total",
			Help:      "Total number of credential refresh exchanges",
		},
		[]string{"status"}, // status: success, error
	)

	// authRefreshDuration is a histogram of refresh exchange duration.
	authRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_refresh_duration_seconds",
			Help:      "Duration of credential refresh exchanges in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		streamsActive,
		streamConnectionsTotal,
		streamHandshakeDuration,
		streamClosesTotal,
		framesTotal,
		protocolViolationsTotal,
		requestsTotal,
		requestDuration,
		responseChunks,
		authRefreshTotal,
		authRefreshDuration,
	}
)

// RecordStreamOpened records a successful handshake.
func RecordStreamOpened(handshakeSeconds float64) {
	streamsActive.Inc()
	streamConnectionsTotal.WithLabelValues(statusSuccess).Inc()
	streamHandshakeDuration.Observe(handshakeSeconds)
}

// RecordStreamFailed records a channel that never opened.
func RecordStreamFailed(reason string) {
	streamConnectionsTotal.WithLabelValues(reason).Inc()
}

// RecordStreamClosed records the end of an open channel.
func RecordStreamClosed(reason string, interrupted bool) {
	streamsActive.Dec()
	label := "false"
	if interrupted {
		label = "true"
	}
	streamClosesTotal.WithLabelValues(reason, label).Inc()
}

// RecordFrame records an applied frame.
func RecordFrame(kind string) {
	framesTotal.WithLabelValues(kind).Inc()
}

// RecordProtocolViolation records a discarded frame.
func RecordProtocolViolation(kind string) {
	protocolViolationsTotal.WithLabelValues(kind).Inc()
}

// RecordRequestSent records a prompt sent.
func RecordRequestSent() {
	requestsTotal.Inc()
}

// RecordRequestCompleted records a finished response.
func RecordRequestCompleted(durationSeconds float64, chunks int) {
	requestDuration.Observe(durationSeconds)
	responseChunks.Observe(float64(chunks))
}

// RecordRefresh records a refresh exchange.
func RecordRefresh(status string, durationSeconds float64) {
	authRefreshTotal.WithLabelValues(status).Inc()
	authRefreshDuration.WithLabelValues(status).Observe(durationSeconds)
}
