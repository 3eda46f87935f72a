package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insider-one/notification-service/internal/domain"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	channelsSent        *prometheus.CounterVec
	channelsRetried     *prometheus.CounterVec
	channelsFailed      *prometheus.CounterVec
	statusDepth         *prometheus.GaugeVec
	processingLatency   *prometheus.HistogramVec
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		channelsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_sent_total",
				Help: "Total number of channel deliveries accepted by the provider",
			},
			[]string{"channel"},
		),
		channelsRetried: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_retry_total",
				Help: "Total number of channel attempts scheduled for retry",
			},
			[]string{"channel"},
		),
		channelsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "channel_failed_total",
				Help: "Total number of channels that reached a terminal failure",
			},
			[]string{"channel"},
		),
		statusDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notification_channel_status_depth",
				Help: "Current count of channel states per status",
			},
			[]string{"status"},
		),
		processingLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notification_processing_latency_seconds",
				Help:    "Time from creation to successful send",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"channel"},
		),
	}
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordChannelSent records a successful channel send
func (m *Metrics) RecordChannelSent(channel string) {
	m.channelsSent.WithLabelValues(channel).Inc()
}

// RecordChannelRetried records a channel attempt scheduled for retry
func (m *Metrics) RecordChannelRetried(channel string) {
	m.channelsRetried.WithLabelValues(channel).Inc()
}

// RecordChannelFailed records a channel that reached terminal FAILED
func (m *Metrics) RecordChannelFailed(channel string) {
	m.channelsFailed.WithLabelValues(channel).Inc()
}

// SetStatusDepth sets the current count of channel states in a given status
func (m *Metrics) SetStatusDepth(status string, depth float64) {
	m.statusDepth.WithLabelValues(status).Set(depth)
}

// RecordProcessingLatency records the time from creation to send
func (m *Metrics) RecordProcessingLatency(channel string, latency time.Duration) {
	m.processingLatency.WithLabelValues(channel).Observe(latency.Seconds())
}

// StatusCounter is the minimal repository capability the metrics handler
// needs: a snapshot count of channel states grouped by status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
}

// MetricsHandler handles metrics endpoints
type MetricsHandler struct {
	metrics *Metrics
	repo    StatusCounter
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler(metrics *Metrics, repo StatusCounter) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		repo:    repo,
	}
}

// Handler returns the Prometheus HTTP handler
func (h *MetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

// RealtimeMetrics refreshes and returns per-status channel-state counts.
// @Summary Real-time metrics
// @Description Get real-time channel-state counts grouped by status
// @Tags metrics
// @Produce json
// @Success 200 {object} Response
// @Failure 500 {object} Response
// @Router /metrics/realtime [get]
func (h *MetricsHandler) RealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	counts, err := h.repo.CountByStatus(ctx)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "METRICS_ERROR", "Failed to get channel status counts", nil)
		return
	}

	out := make(map[string]int64, len(counts))
	for status, count := range counts {
		out[string(status)] = count
		h.metrics.SetStatusDepth(string(status), float64(count))
	}

	JSON(w, http.StatusOK, out)
}
