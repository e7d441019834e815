// Package metrics provides Prometheus metrics for the console's sessions and
// API calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Socket session metrics
	sessionDialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "director_console_session_dials_total",
			Help: "Total socket dial attempts",
		},
		[]string{"session", "result"},
	)

	sessionFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "director_console_session_frames_total",
			Help: "Total frames received per session",
		},
		[]string{"session", "kind"},
	)

	sessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "director_console_session_state",
			Help: "Current session state (0 not connected, 1 connecting, 2 open, 3 synced, 4 retry pending)",
		},
		[]string{"session"},
	)

	sessionRetryDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "director_console_session_retry_delay_seconds",
			Help:    "Delay before reconnecting a closed session",
			Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30},
		},
		[]string{"session"},
	)

	// HTTP API metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "director_console_api_requests_total",
			Help: "Total HTTP API requests",
		},
		[]string{"endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "director_console_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// File tree metrics
	treeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "director_console_tree_events_total",
			Help: "Total file-watch events applied to the tree",
		},
		[]string{"event"},
	)

	treeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "director_console_tree_size",
			Help: "Number of entries in the file tree",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDial records a socket dial attempt.
func RecordDial(session string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	sessionDialsTotal.WithLabelValues(session, result).Inc()
}

// RecordFrame records a received frame.
func RecordFrame(session string, binary bool) {
	kind := "text"
	if binary {
		kind = "binary"
	}
	sessionFramesTotal.WithLabelValues(session, kind).Inc()
}

// SetSessionState sets the current state of a session.
func SetSessionState(session string, state int) {
	sessionState.WithLabelValues(session).Set(float64(state))
}

// RecordRetry records the delay chosen before a reconnect.
func RecordRetry(session string, delay time.Duration) {
	sessionRetryDelay.WithLabelValues(session).Observe(delay.Seconds())
}

// RecordAPIRequest records an HTTP API request.
func RecordAPIRequest(endpoint string, status int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordTreeEvent records a file-watch event.
func RecordTreeEvent(event string) {
	treeEventsTotal.WithLabelValues(event).Inc()
}

// SetTreeSize sets the current number of entries in the file tree.
func SetTreeSize(size int) {
	treeSize.Set(float64(size))
}
