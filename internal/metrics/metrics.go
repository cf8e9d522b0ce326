package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WFSRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_wfs_requests_total",
		Help: "Total WFS GetFeature requests by typename",
	}, []string{"typename"})
	WFSFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_wfs_fail_total",
		Help: "Total failed WFS GetFeature requests by typename",
	}, []string{"typename"})
	WFSDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lrtp_wfs_duration_ms",
		Help:    "WFS GetFeature duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"typename"})
	WFSCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lrtp_wfs_cache_hits_total",
		Help: "Total redis hits for WFS responses",
	})
	WFSCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lrtp_wfs_cache_misses_total",
		Help: "Total redis misses for WFS responses",
	})
	ReportRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_report_runs_total",
		Help: "Report pipeline runs by pipeline and final outcome",
	}, []string{"pipeline", "outcome"})
	ReportStagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_report_stages_total",
		Help: "Report stages by pipeline, stage and outcome",
	}, []string{"pipeline", "stage", "outcome"})
	ReportStageDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lrtp_report_stage_duration_ms",
		Help:    "Report stage duration (fetch + render) in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"pipeline", "stage"})
	LegendSlotsOccupied = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lrtp_legend_slots_occupied",
		Help:    "Occupied legend slots observed after each legend change",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})
	LegendRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_legend_rejected_total",
		Help: "Legend adds that changed nothing, by reason",
	}, []string{"reason"})
	SessionsAlive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lrtp_sessions_alive",
		Help: "Page sessions currently held in memory",
	})
	UpstreamHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lrtp_upstream_healthy",
		Help: "1 when the last GeoServer heartbeat succeeded",
	})
	UpstreamHeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_upstream_heartbeat_total",
		Help: "GeoServer heartbeat count by status",
	}, []string{"status"})
	HTTPThrottledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_http_throttled_total",
		Help: "Requests rejected with 429 by limiter scope",
	}, []string{"scope"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrtp_http_requests_total",
		Help: "API requests by route and status class",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(WFSRequestsTotal)
	prometheus.MustRegister(WFSFailTotal)
	prometheus.MustRegister(WFSDurationMs)
	prometheus.MustRegister(WFSCacheHitsTotal)
	prometheus.MustRegister(WFSCacheMissesTotal)
	prometheus.MustRegister(ReportRunsTotal)
	prometheus.MustRegister(ReportStagesTotal)
	prometheus.MustRegister(ReportStageDurationMs)
	prometheus.MustRegister(LegendSlotsOccupied)
	prometheus.MustRegister(LegendRejectedTotal)
	prometheus.MustRegister(SessionsAlive)
	prometheus.MustRegister(UpstreamHealthy)
	prometheus.MustRegister(UpstreamHeartbeatTotal)
	prometheus.MustRegister(HTTPThrottledTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// 文档注释：返回 Prometheus 指标处理器，主入口挂载到 {API_BASE}/metrics
func Handler() http.Handler { return promhttp.Handler() }
