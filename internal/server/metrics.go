package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/ssdp/internal/protocol"
	"github.com/muurk/ssdp/internal/version"
)

const (
	metricsNamespace = "ssdp"
	metricsSubsystem = "discovery"
)

// metrics holds the collectors served on /metrics. Each Server has its own
// registry so several can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	messagesTotal *prometheus.CounterVec
	bytesTotal    *prometheus.CounterVec
}

func newMetrics(s *Server) *metrics {
	m := &metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "messages_total",
			Help:      "Number of SSDP messages sent or received.",
		}, []string{"direction", "kind"}),
		bytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "bytes_total",
			Help:      "Encoded size of SSDP messages sent or received.",
		}, []string{"direction"}),
	}
	m.registry = prometheus.NewRegistry()

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "build_info",
		Help:      "A metric with a constant '1' value labeled by version and commit.",
	}, []string{"version", "commit"})
	buildInfo.WithLabelValues(version.Version, version.Commit).Set(1)

	m.registry.MustRegister(
		m.messagesTotal,
		m.bytesTotal,
		buildInfo,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "cache_entries",
			Help:      "Number of live entries in the discovery cache.",
		}, func() float64 { return float64(len(s.cfg.Entries.Entries())) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "server",
			Name:      "event_subscribers",
			Help:      "Number of connected /events clients.",
		}, func() float64 { return float64(s.hub.len()) }),
		collectors.NewGoCollector(),
	)

	// Present at zero before the first message.
	for _, dir := range []string{DirectionSent, DirectionReceived} {
		m.bytesTotal.WithLabelValues(dir)
	}
	return m
}

func (m *metrics) observe(direction string, msg protocol.Message) {
	m.messagesTotal.WithLabelValues(direction, msg.Kind().String()).Inc()
	m.bytesTotal.WithLabelValues(direction).Add(float64(len(msg.Encode())))
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
