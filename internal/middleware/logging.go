// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"healthguide-go/pkg/log"
)

// RequestLogger 是一个 Gin 中间件，记录请求的状态、耗时与报文大小。
// 会话内容属于健康数据，请求体与响应体不写入日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"requestBytes", c.Request.ContentLength,
			"responseBytes", c.Writer.Size(),
		)
	}
}
