package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка HTTP-запроса
	RequestDuration *prometheus.HistogramVec

	// Traffic: закоммиченные переходы по типам решений
	TransitionsTotal *prometheus.CounterVec

	// Errors: классификация отказов бизнес-операций
	ErrorTotal *prometheus.CounterVec

	// Saturation: заполненность очереди диспетчера (backpressure)
	DispatchQueueFill prometheus.Gauge

	// Доставка: сколько раз пришлось уходить в повторную попытку
	DispatchRetries prometheus.Counter

	// Уведомления, реально сохраненные в ленту (без дублей)
	NotificationsTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reqflow_request_duration_seconds",
			Help:    "Histogram of gateway request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "status"}),

		TransitionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_transitions_total",
			Help: "Total number of committed state transitions.",
		}, []string{"decision", "to_state"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_errors_total",
			Help: "Total number of business errors by type.",
		}, []string{"type"}), // типы: invalid_payload, not_found, invalid_transition, unauthorized_role, conflict

		DispatchQueueFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "reqflow_dispatch_queue_fill",
			Help: "Current number of events in the dispatcher queue.",
		}),

		DispatchRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "reqflow_dispatch_retries_total",
			Help: "Total number of notification delivery retry rounds.",
		}),

		NotificationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "reqflow_notifications_total",
			Help: "Total number of notifications stored in the feed.",
		}, []string{"kind"}),
	}
}
