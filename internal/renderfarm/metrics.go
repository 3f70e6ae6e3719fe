package renderfarm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvstudio",
			Subsystem: "render",
			Name:      "jobs_total",
			Help:      "渲染任务总数。",
		},
		[]string{"kind", "status"},
	)

	jobsInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cvstudio",
			Subsystem: "render",
			Name:      "jobs_in_progress",
			Help:      "当前占用浏览器槽位的渲染任务数量。",
		},
		[]string{"kind"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvstudio",
			Subsystem: "render",
			Name:      "job_duration_seconds",
			Help:      "渲染任务耗时分布（秒）。",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
