package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	CommandsProcessed    *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
}

// NewMetrics создает метрики бота в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportclub_bot_commands_total",
			Help: "Staff commands and callbacks by name",
		}, []string{"command"}),

		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sportclub_bot_notifications_total",
			Help: "Staff notifications by event type and result",
		}, []string{"event", "result"}),

		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sportclub_bot_errors_total",
			Help: "Recovered panics in update handlers",
		}),

		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sportclub_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incCommand(name string) {
	if m == nil {
		return
	}
	m.CommandsProcessed.WithLabelValues(name).Inc()
}

func (m *Metrics) incNotification(event, result string) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(event, result).Inc()
}

func (m *Metrics) incError() {
	if m == nil {
		return
	}
	m.ErrorsTotal.Inc()
}

func (m *Metrics) observeUpdate(d time.Duration) {
	if m == nil {
		return
	}
	m.UpdateProcessingTime.Observe(d.Seconds())
}
