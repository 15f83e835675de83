// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cnc"

// Metrics - метрики уровня сервиса. Все методы безопасны для nil, чтобы
// компоненты можно было собирать без метрик в тестах.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionStates *prometheus.GaugeVec
	LinesAcked       prometheus.Counter
	JobsFinished     *prometheus.CounterVec
	TasksRunning     prometheus.Gauge
	TasksAbandoned   prometheus.Gauge
	TasksFinished    *prometheus.CounterVec
	TaskDuration     prometheus.Histogram
	EventsPublished  *prometheus.CounterVec
	ClientsDropped   prometheus.Counter
	RealtimeClients  prometheus.Gauge
}

// NewMetrics создает метрики в собственном реестре вместе со
// стандартными коллекторами процесса и рантайма Go.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConnectionStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "sessions",
			Help:      "Number of controller sessions by workflow state",
		}, []string{"state"}),

		LinesAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "lines_acked_total",
			Help:      "Total number of job lines acknowledged by controllers",
		}),

		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "finished_total",
			Help:      "Total number of jobs reaching a terminal status",
		}, []string{"status"}),

		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "running",
			Help:      "Number of background tasks currently executing",
		}),

		TasksAbandoned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "abandoned",
			Help:      "Number of force-terminated task handlers still holding a worker",
		}),

		TasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "finished_total",
			Help:      "Total number of background tasks reaching a terminal status",
		}, []string{"status"}),

		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "duration_seconds",
			Help:      "Background task execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total number of events published on the bus",
		}, []string{"type"}),

		ClientsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "client_drops_total",
			Help:      "Total number of client topic subscriptions dropped on queue overflow",
		}),

		RealtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Number of connected realtime clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ConnectionStates,
		m.LinesAcked,
		m.JobsFinished,
		m.TasksRunning,
		m.TasksAbandoned,
		m.TasksFinished,
		m.TaskDuration,
		m.EventsPublished,
		m.ClientsDropped,
		m.RealtimeClients,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler отдает метрики в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ConnectionStateChanged переносит сессию из одного состояния в другое.
// Пустое from - новая сессия, пустое to - сессия удалена.
func (m *Metrics) ConnectionStateChanged(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.ConnectionStates.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.ConnectionStates.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) LineAcked() {
	if m == nil {
		return
	}
	m.LinesAcked.Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.TasksRunning.Inc()
}

// TaskFinished учитывает завершение задачи. started - момент запуска,
// нулевой для задач, отмененных до начала выполнения.
func (m *Metrics) TaskFinished(status string, started time.Time) {
	if m == nil {
		return
	}
	m.TasksFinished.WithLabelValues(status).Inc()
	if !started.IsZero() {
		m.TasksRunning.Dec()
		m.TaskDuration.Observe(time.Since(started).Seconds())
	}
}

// TaskAbandoned учитывает обработчик, брошенный после принудительного
// завершения задачи.
func (m *Metrics) TaskAbandoned() {
	if m == nil {
		return
	}
	m.TasksAbandoned.Inc()
}

func (m *Metrics) TaskReclaimed() {
	if m == nil {
		return
	}
	m.TasksAbandoned.Dec()
}

func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) ClientDropped() {
	if m == nil {
		return
	}
	m.ClientsDropped.Inc()
}

func (m *Metrics) RealtimeClientConnected() {
	if m == nil {
		return
	}
	m.RealtimeClients.Inc()
}

func (m *Metrics) RealtimeClientDisconnected() {
	if m == nil {
		return
	}
	m.RealtimeClients.Dec()
}
