package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestLogger 给每个请求一个可以串联日志的 request id，并记录访问日志。
// 客户端带 X-Request-ID 时沿用，方便跨服务排查。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", reqID)

		start := time.Now()
		c.Next()

		// SSE 等长连接会到关闭才落一条，可接受。
		slog.Info("http 请求",
			"id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"cost", time.Since(start).String(),
		)
	}
}
