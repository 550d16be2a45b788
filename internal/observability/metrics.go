package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	handshakeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Subsystem: "handshake",
			Name:      "runs_total",
			Help:      "Handshake runs by outcome.",
		},
		[]string{"outcome"},
	)
	handshakeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Subsystem: "handshake",
			Name:      "events_total",
			Help:      "Handshake events recorded by direction and command.",
		},
		[]string{"direction", "command"},
	)
	handshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "peerprobe",
			Subsystem: "handshake",
			Name:      "duration_seconds",
			Help:      "Handshake run duration in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
	wireBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peerprobe",
			Subsystem: "wire",
			Name:      "bytes_total",
			Help:      "Protocol message bytes by direction.",
		},
		[]string{"direction"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(handshakeRuns, handshakeEvents, handshakeDuration, wireBytes)
	})
}

func RecordRun(outcome string, duration time.Duration) {
	RegisterMetrics()
	handshakeRuns.WithLabelValues(outcome).Inc()
	handshakeDuration.Observe(duration.Seconds())
}

func RecordEvent(direction, command string) {
	RegisterMetrics()
	handshakeEvents.WithLabelValues(direction, command).Inc()
}

func RecordWireBytes(direction string, n int) {
	RegisterMetrics()
	wireBytes.WithLabelValues(direction).Add(float64(n))
}

// WriteTextfile dumps the default registry in the text exposition format, for
// node_exporter's textfile collector.
func WriteTextfile(path string) error {
	RegisterMetrics()
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
