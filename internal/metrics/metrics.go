// Package metrics 汇总缓存与抓取层的 Prometheus 指标。所有方法对 nil 接收者安全，
// 便于测试或嵌入场景下不注入指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 持有各组件共享的指标向量，按 namespace 打标签。
type Metrics struct {
	Lookups         *prometheus.CounterVec
	DiskWriteErrors *prometheus.CounterVec
	Evicted         *prometheus.CounterVec
	Fetches         *prometheus.CounterVec
	Coalesced       *prometheus.CounterVec
	InFlight        *prometheus.GaugeVec
}

// New 创建指标并注册到 reg；reg 为 nil 时只创建不注册。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by tier and result.",
		}, []string{"namespace", "tier", "result"}),
		DiskWriteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "disk_write_errors_total",
			Help:      "Failed disk writes.",
		}, []string{"namespace"}),
		Evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "evicted_files_total",
			Help:      "Disk entries removed by age eviction.",
		}, []string{"namespace"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "fetches_total",
			Help:      "Finished fetch entries by outcome.",
		}, []string{"namespace", "outcome"}),
		Coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imgcache",
			Name:      "fetch_coalesced_total",
			Help:      "Fetch requests that joined an in-flight entry.",
		}, []string{"namespace"}),
		InFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "imgcache",
			Name:      "fetch_inflight",
			Help:      "Registered fetch entries.",
		}, []string{"namespace"}),
	}
	if reg != nil {
		reg.MustRegister(m.Lookups, m.DiskWriteErrors, m.Evicted, m.Fetches, m.Coalesced, m.InFlight)
	}
	return m
}

// Lookup 记录一次缓存查询，tier 为 memory/disk，hit 决定 result 标签。
func (m *Metrics) Lookup(namespace, tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.Lookups.WithLabelValues(namespace, tier, result).Inc()
}

func (m *Metrics) DiskWriteFailed(namespace string) {
	if m == nil {
		return
	}
	m.DiskWriteErrors.WithLabelValues(namespace).Inc()
}

func (m *Metrics) EvictedFiles(namespace string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Evicted.WithLabelValues(namespace).Add(float64(n))
}

// FetchFinished 记录 entry 终态：succeeded/failed/cancelled。
func (m *Metrics) FetchFinished(namespace, outcome string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(namespace, outcome).Inc()
}

func (m *Metrics) FetchCoalesced(namespace string) {
	if m == nil {
		return
	}
	m.Coalesced.WithLabelValues(namespace).Inc()
}

func (m *Metrics) SetInFlight(namespace string, n int) {
	if m == nil {
		return
	}
	m.InFlight.WithLabelValues(namespace).Set(float64(n))
}
