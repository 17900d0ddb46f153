// Package metrics 定义摄取运行的 Prometheus 指标，并以 run.Observer 的形式接入调度器。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Robertt/movieingest/internal/app/run"
	"github.com/John-Robertt/movieingest/internal/domain"
	"github.com/John-Robertt/movieingest/internal/provider"
)

const namespace = "movieingest"

// Metrics 持有全部指标；每个实例使用独立 Registry（避免全局注册冲突）。
type Metrics struct {
	reg *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunsActive      prometheus.Gauge
	ItemsTotal      *prometheus.CounterVec
	ItemDuration    *prometheus.HistogramVec
	FetchTotal      *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	RetriesTotal    *prometheus.CounterVec
	ListingErrors   *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	LastRunFinished prometheus.Gauge
}

var _ run.Observer = (*Metrics)(nil)

// New 创建并注册全部指标（含 Go 运行时与进程指标）。
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Ingestion runs by source and outcome (completed, cancelled).",
			},
			[]string{"source", "outcome"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_active",
				Help:      "Number of ingestion runs currently executing.",
			},
		),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_total",
				Help:      "Items with a final result by status and error code.",
			},
			[]string{"status", "code"},
		),
		ItemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "item_duration_seconds",
				Help:      "Time from dequeue to final result per item.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		FetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_total",
				Help:      "External fetches by source, operation and result (ok, transient, throttled, permanent, parse, error).",
			},
			[]string{"source", "op", "result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "External fetch latency in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source", "op"},
		),
		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Fetch attempts beyond the first.",
			},
			[]string{"source", "op"},
		),
		ListingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listing_errors_total",
				Help:      "Listing pages abandoned after retries.",
			},
			[]string{"source"},
		),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of run phases (listing, persist).",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"phase"},
		),
		LastRunFinished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_finished_timestamp_seconds",
				Help:      "Unix time the last run finished.",
			},
		),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.RunsActive,
		m.ItemsTotal,
		m.ItemDuration,
		m.FetchTotal,
		m.FetchDuration,
		m.RetriesTotal,
		m.ListingErrors,
		m.PhaseDuration,
		m.LastRunFinished,
	)
	return m
}

// Registry 暴露底层 registry（测试 / 额外注册用）。
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler 返回 /metrics 的抓取 handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) OnStart(domain.IngestionRun, run.Config) {
	m.RunsActive.Inc()
}

func (m *Metrics) OnPhaseDone(name string, _ map[string]any, dur time.Duration) {
	if dur <= 0 {
		return
	}
	m.PhaseDuration.WithLabelValues(name).Observe(dur.Seconds())
}

func (m *Metrics) OnFetch(source, op string, attempt int, err error, dur time.Duration) {
	m.FetchTotal.WithLabelValues(source, op, fetchResult(err)).Inc()
	m.FetchDuration.WithLabelValues(source, op).Observe(dur.Seconds())
	if attempt > 1 {
		m.RetriesTotal.WithLabelValues(source, op).Inc()
	}
}

func (m *Metrics) OnItemDone(_ domain.Progress, res domain.ItemResult, dur time.Duration) {
	m.ItemsTotal.WithLabelValues(res.Status, res.ErrorCode).Inc()
	m.ItemDuration.WithLabelValues(res.Status).Observe(dur.Seconds())
}

func (m *Metrics) OnFinish(r domain.IngestionRun) {
	m.RunsActive.Dec()
	outcome := "completed"
	if r.Cancelled {
		outcome = "cancelled"
	}
	m.RunsTotal.WithLabelValues(r.Source, outcome).Inc()
	if r.ListingErrors > 0 {
		m.ListingErrors.WithLabelValues(r.Source).Add(float64(r.ListingErrors))
	}
	m.LastRunFinished.Set(float64(r.FinishedAt.Unix()))
}

func fetchResult(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := provider.Throttle(err); ok {
		return "throttled"
	}
	k, ok := provider.KindOf(err)
	if !ok {
		return "error"
	}
	return string(k)
}
