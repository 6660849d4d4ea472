package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(requestsTotal, requestDuration)
}

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cxclient_requests_total",
			Help: "Requests sent to the server per operation and HTTP status code. Code 0 means no response.",
		},
		[]string{"op", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cxclient_request_duration_seconds",
			Help:    "Request latency per operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// ObserveRequest records one request. code is zero when no response was received.
func ObserveRequest(op string, code int, d time.Duration) {
	requestsTotal.WithLabelValues(op, strconv.Itoa(code)).Inc()
	requestDuration.WithLabelValues(op).Observe(d.Seconds())
}
