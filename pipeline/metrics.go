package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总管线的 Prometheus 指标。
type Metrics struct {
	Requests        prometheus.Counter
	Recovered       prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	BackendFailures *prometheus.CounterVec
}

// NewMetrics 创建并注册管线指标。reg 为 nil 时只创建不注册（测试用）。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryflow",
			Name:      "requests_total",
			Help:      "Total queries answered.",
		}),
		Recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "queryflow",
			Name:      "panics_recovered_total",
			Help:      "Panics recovered at the pipeline boundary.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "queryflow",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration per pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		BackendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queryflow",
			Name:      "backend_failures_total",
			Help:      "Retrieval backend failures by backend.",
		}, []string{"backend"}),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Recovered, m.StageDuration, m.BackendFailures)
	}

	return m
}

// observeStage 记录单个阶段耗时；metrics 可为 nil。
func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// observeBackendFailure 记录单个检索后端的失败；metrics 可为 nil。
func (m *Metrics) observeBackendFailure(backend string) {
	if m == nil {
		return
	}
	m.BackendFailures.WithLabelValues(backend).Inc()
}
