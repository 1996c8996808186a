package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "murmur"

// PrometheusCollector implements ports.ChatMetrics plus HTTP request metrics.
type PrometheusCollector struct {
	messagesTotal     *prometheus.CounterVec
	storeLatency      *prometheus.HistogramVec
	onlineUsers       prometheus.Gauge
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	deliveriesDropped prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers all metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Committed message mutations by action",
		}, []string{"action"}),

		storeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of message store writes",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),

		onlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Distinct users with at least one joined connection",
		}),

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Open realtime connections",
		}),

		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Realtime connections accepted",
		}),

		deliveriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Connections dropped because their send queue was full",
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) MessageCommitted(action string) {
	p.messagesTotal.WithLabelValues(action).Inc()
}

func (p *PrometheusCollector) ObserveStoreLatency(operation string, d time.Duration) {
	p.storeLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusCollector) SetOnlineUsers(n int) {
	p.onlineUsers.Set(float64(n))
}

func (p *PrometheusCollector) ConnectionOpened() {
	p.connectionsActive.Inc()
	p.connectionsTotal.Inc()
}

func (p *PrometheusCollector) ConnectionClosed() {
	p.connectionsActive.Dec()
}

func (p *PrometheusCollector) DeliveryDropped() {
	p.deliveriesDropped.Inc()
}

// ObserveHTTPRequest records one finished request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (p *PrometheusCollector) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, status).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
