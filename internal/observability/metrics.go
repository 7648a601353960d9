package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	channelDatagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typechan",
			Subsystem: "channel",
			Name:      "datagrams_total",
			Help:      "Datagrams moved through channels.",
		},
		[]string{"channel", "dir"},
	)
	channelBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typechan",
			Subsystem: "channel",
			Name:      "payload_bytes_total",
			Help:      "Logical payload bytes moved through channels.",
		},
		[]string{"channel", "dir"},
	)
	channelChunked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typechan",
			Subsystem: "channel",
			Name:      "chunked_messages_total",
			Help:      "Logical messages that spanned more than one datagram.",
		},
		[]string{"channel", "dir"},
	)
	channelEOF = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typechan",
			Subsystem: "channel",
			Name:      "eof_total",
			Help:      "EOF sentinels sent or received.",
		},
		[]string{"channel", "dir"},
	)
	channelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typechan",
			Subsystem: "channel",
			Name:      "failures_total",
			Help:      "Failed channel operations.",
		},
		[]string{"channel", "dir"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "typechan",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"rpc", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "typechan",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "typechan",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			channelDatagrams, channelBytes, channelChunked, channelEOF, channelFailures,
			rpcDuration, httpRequests, httpDuration,
		)
	})
}

// RecordMessage counts one logical message of n payload bytes carried in
// datagrams transport messages.
func RecordMessage(channel, dir string, n, datagrams int) {
	RegisterMetrics()
	channelDatagrams.WithLabelValues(channel, dir).Add(float64(datagrams))
	channelBytes.WithLabelValues(channel, dir).Add(float64(n))
	if datagrams > 1 {
		channelChunked.WithLabelValues(channel, dir).Inc()
	}
}

func RecordEOF(channel, dir string) {
	RegisterMetrics()
	channelDatagrams.WithLabelValues(channel, dir).Inc()
	channelEOF.WithLabelValues(channel, dir).Inc()
}

func RecordFailure(channel, dir string) {
	RegisterMetrics()
	channelFailures.WithLabelValues(channel, dir).Inc()
}

func RecordCall(rpc string, duration time.Duration, success bool) {
	RegisterMetrics()
	rpcDuration.WithLabelValues(rpc, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
