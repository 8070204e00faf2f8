package metrics

import (
	"time"

	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SystemMetrics метрики процесса и зависимостей
type SystemMetrics interface {
	// SetDependencyUp отмечает доступность зависимости (postgres, redis, kafka)
	SetDependencyUp(name string, up bool)
	// SchedulerTick отмечает время последнего запуска фоновой задачи
	SchedulerTick(job string, at time.Time)
}

type systemMetrics struct {
	log        *logger.Logger
	startedAt  prometheus.Gauge
	dependency *prometheus.GaugeVec
	lastTick   *prometheus.GaugeVec
}

// NewRegistry создает реестр с коллекторами рантайма Go и процесса
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewSystemMetrics создает новые системные метрики
func NewSystemMetrics(registry *prometheus.Registry, log *logger.Logger) SystemMetrics {
	factory := promauto.With(registry)

	m := &systemMetrics{
		log: log,
		startedAt: factory.NewGauge(prometheus.GaugeOpts{
			Name: "donations_start_time_seconds",
			Help: "Unix time the service started",
		}),
		dependency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "donations_dependency_up",
			Help: "Whether a dependency was reachable at the last check",
		}, []string{"dependency", "up"}),
		lastTick: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "donations_scheduler_last_run_seconds",
			Help: "Unix time of the last background job run",
		}, []string{"job"}),
	}
	m.startedAt.SetToCurrentTime()
	return m
}

func (m *systemMetrics) SetDependencyUp(name string, up bool) {
	m.dependency.DeleteLabelValues(name, boolLabel(!up))
	m.dependency.WithLabelValues(name, boolLabel(up)).Set(1)
	if !up {
		m.log.Warnw("Dependency is down", "dependency", name)
	}
}

func (m *systemMetrics) SchedulerTick(job string, at time.Time) {
	m.lastTick.WithLabelValues(job).Set(float64(at.Unix()))
}
