package metrics

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "srmc"

// Metrics 是单次运行的采集指标。每个实例持有独立 Registry，不注册到全局。
//
// 所有方法对 nil 接收者安全：未启用 --metrics-out 时上层可以直接传 nil。
type Metrics struct {
	reg *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   prometheus.Histogram
	retries   *prometheus.CounterVec
	pages     *prometheus.CounterVec
	items     *prometheus.CounterVec
	rows      *prometheus.GaugeVec
	failed    prometheus.Gauge
	lastRunTS prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}
	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_requests_total",
		Help:      "Review page requests by result",
	}, []string{"appid", "result"})
	m.latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "page_request_duration_seconds",
		Help:      "Time spent on one review page request",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})
	m.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_retries_total",
		Help:      "Retries of a review page request",
	}, []string{"appid"})
	m.pages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pages_total",
		Help:      "Review pages decoded successfully",
	}, []string{"appid"})
	m.items = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reviews_received_total",
		Help:      "Reviews received from upstream before the per-game cap",
	}, []string{"appid"})
	m.rows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rows_collected",
		Help:      "Rows written for one source",
	}, []string{"appid", "stop_reason"})
	m.failed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sources_failed",
		Help:      "Sources that ended with stop_reason=failed or canceled",
	})
	m.lastRunTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the end of the run",
	})
	m.reg.MustRegister(m.requests, m.latency, m.retries, m.pages, m.items, m.rows, m.failed, m.lastRunTS)
	return m
}

// Registry 暴露底层 Gatherer（测试与导出用）。
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObserveRequest 记录一次分页请求；result 为 "ok" 或失败类别（例如 "http_429"、"decode"、"transport"）。
func (m *Metrics) ObserveRequest(appID int, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(strconv.Itoa(appID), result).Inc()
	m.latency.Observe(d.Seconds())
}

func (m *Metrics) AddRetry(appID int) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(strconv.Itoa(appID)).Inc()
}

func (m *Metrics) AddPage(appID, items int) {
	if m == nil {
		return
	}
	id := strconv.Itoa(appID)
	m.pages.WithLabelValues(id).Inc()
	m.items.WithLabelValues(id).Add(float64(items))
}

func (m *Metrics) SetRows(appID, rows int, stop string) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(strconv.Itoa(appID), stop).Set(float64(rows))
}

func (m *Metrics) Finish(failed int, at time.Time) {
	if m == nil {
		return
	}
	m.failed.Set(float64(failed))
	m.lastRunTS.Set(float64(at.Unix()))
}

// WriteTextfile 以 node_exporter textfile 格式写出全部指标（原子替换）。
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
