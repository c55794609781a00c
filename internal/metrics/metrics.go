// Package metrics 暴露 Prometheus 指标与对应的 gin 中间件。
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratemall_http_requests_total",
			Help: "HTTP 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratemall_http_request_duration_seconds",
			Help:    "HTTP 请求耗时",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RatingsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemall_ratings_submitted_total",
			Help: "成功提交的评分数",
		},
	)

	DepositsApprovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemall_deposits_approved_total",
			Help: "审批通过的充值单数",
		},
	)

	PayoutsCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ratemall_payouts_completed_total",
			Help: "完成的提现单数",
		},
	)
)

// GinMiddleware 按路由模板（而非原始 URL）聚合，避免 path 维度爆炸。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 /metrics 的处理函数。
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
