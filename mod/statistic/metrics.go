package statistic

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricNamespace = "edgeproxy"

// Metrics hold the Prometheus instruments on a private registry
type Metrics struct {
	Registry        *prometheus.Registry
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseBytes   *prometheus.CounterVec
	OriginErrors    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "requests_total",
			Help:      "Requests handled by the edge proxy.",
		}, []string{"listener", "class", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time from request start to the last byte written.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"listener", "class"}),
		ResponseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "response_bytes_total",
			Help:      "Response body bytes written to clients.",
		}, []string{"listener", "class"}),
		OriginErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "origin_errors_total",
			Help:      "Failed requests toward the origin by kind.",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.ResponseBytes,
		m.OriginErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) observeRequest(ri RequestInfo) {
	m.Requests.WithLabelValues(ri.Listener, ri.Class, strconv.Itoa(ri.StatusCode)).Inc()
	m.RequestDuration.WithLabelValues(ri.Listener, ri.Class).Observe(ri.Duration.Seconds())
	m.ResponseBytes.WithLabelValues(ri.Listener, ri.Class).Add(float64(ri.Written))
}

// RegisterCertificateExpiry export the NotAfter of the served certificate as
// edgeproxy_certificate_expiry_timestamp_seconds. The gauge read 0 while no
// certificate is loaded
func (m *Metrics) RegisterCertificateExpiry(expiry func() (time.Time, bool)) error {
	return m.Registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      "certificate_expiry_timestamp_seconds",
		Help:      "Expiry of the default TLS certificate as a unix timestamp.",
	}, func() float64 {
		notAfter, ok := expiry()
		if !ok {
			return 0
		}
		return float64(notAfter.Unix())
	}))
}
