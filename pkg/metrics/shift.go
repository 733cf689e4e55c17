package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "factory"

// Day outcome labels
const (
	DayComputed = "computed"
	DaySkipped  = "skipped"
	DayExcluded = "excluded"
	DayFailed   = "failed"
)

// ShiftMetrics 班次估算计算指标
// 所有方法对 nil 接收者安全，未启用指标时直接传 nil
type ShiftMetrics struct {
	runs         *prometheus.CounterVec
	days         *prometheus.CounterVec
	insertedRows prometheus.Counter
	conflicts    prometheus.Counter
	workerErrors prometheus.Counter
	runDuration  prometheus.Histogram
}

// NewShiftMetrics 创建并注册指标；reg 为 nil 时使用默认注册表
func NewShiftMetrics(reg prometheus.Registerer) *ShiftMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &ShiftMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift_estimates",
			Name:      "compute_runs_total",
			Help:      "Compute runs by result.",
		}, []string{"result"}),
		days: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift_estimates",
			Name:      "days_total",
			Help:      "Days visited by compute runs, by outcome.",
		}, []string{"outcome"}),
		insertedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift_estimates",
			Name:      "inserted_rows_total",
			Help:      "Shift estimate rows written to the cache store.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift_estimates",
			Name:      "cache_conflicts_total",
			Help:      "Inserts rejected by the cache uniqueness constraint.",
		}),
		workerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shift_estimates",
			Name:      "worker_fetch_errors_total",
			Help:      "Attendance fetch failures for individual workers.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shift_estimates",
			Name:      "compute_duration_seconds",
			Help:      "Duration of a compute run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	reg.MustRegister(m.runs, m.days, m.insertedRows, m.conflicts, m.workerErrors, m.runDuration)
	return m
}

// ObserveDay 记录单日结果
func (m *ShiftMetrics) ObserveDay(outcome string) {
	if m == nil {
		return
	}
	m.days.WithLabelValues(outcome).Inc()
}

// AddInsertedRows 累加写入行数
func (m *ShiftMetrics) AddInsertedRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.insertedRows.Add(float64(n))
}

// IncConflict 唯一约束冲突
func (m *ShiftMetrics) IncConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// AddWorkerErrors 累加工人拉取失败数
func (m *ShiftMetrics) AddWorkerErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.workerErrors.Add(float64(n))
}

// ObserveRun 记录一次计算的耗时与结果
func (m *ShiftMetrics) ObserveRun(d time.Duration, truncated bool) {
	if m == nil {
		return
	}
	result := "ok"
	if truncated {
		result = "truncated"
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(d.Seconds())
}
