package source

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/icesource/pkg/icecast"
)

const metricsNamespace = "icesource"

type metrics struct {
	bytesSent          prometheus.Counter
	buffersSent        prometheus.Counter
	inputsStarted      prometheus.Counter
	sendErrors         *prometheus.CounterVec
	connectionProblems *prometheus.CounterVec
	streaming          prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)

	return &metrics{
		bytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: module,
			Name:      "bytes_sent_total",
			Help:      "Media bytes written to the icecast server.",
		}),
		buffersSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: module,
			Name:      "buffers_sent_total",
			Help:      "Buffers written to the icecast server in full.",
		}),
		inputsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: module,
			Name:      "inputs_started_total",
			Help:      "Input files opened for streaming.",
		}),
		sendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: module,
			Name:      "send_errors_total",
			Help:      "Failed sends by reason.",
		}, []string{"reason"}),
		connectionProblems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: module,
			Name:      "connection_problems_total",
			Help:      "Connection problems reported by the client, by code.",
		}, []string{"code"}),
		streaming: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: module,
			Name:      "streaming",
			Help:      "1 while a handshake-complete connection is open.",
		}),
	}
}

func (m *metrics) observeProblem(p icecast.ConnectionProblem) {
	m.connectionProblems.WithLabelValues(strconv.Itoa(p.Code)).Inc()
}

func sendErrorReason(err error) string {
	switch {
	case errors.Is(err, icecast.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, icecast.ErrConnectionFailed):
		return "connection_failed"
	case errors.Is(err, icecast.ErrStreamWriteFailed):
		return "write_failed"
	case errors.Is(err, icecast.ErrCancelled):
		return "cancelled"
	}
	return "other"
}
