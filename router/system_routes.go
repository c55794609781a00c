package router

import (
	"github.com/gin-gonic/gin"

	"ratemall/internal/metrics"
)

func setSystemRoutes(r *gin.Engine, opts Options) {
	r.GET("/healthz", wrapHTTPFunc(opts.Healthz))
	r.HEAD("/healthz", wrapHTTPFunc(opts.Healthz))
	r.GET("/metrics", metrics.Handler())

	r.POST("/webhook/stripe/:channel_id", wrapHTTPFunc(opts.StripeWebhookByPaymentChannel))
	r.GET("/webhook/epay/:channel_id", wrapHTTPFunc(opts.EPayNotifyByPaymentChannel))
	r.POST("/webhook/epay/:channel_id", wrapHTTPFunc(opts.EPayNotifyByPaymentChannel))
}
