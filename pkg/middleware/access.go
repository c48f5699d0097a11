package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AccessLog はリクエストの開始と完了をzapで記録するGinミドルウェアを返す。
// 開始時にメソッド、パス、クライアントアドレス、クエリを記録し、
// 完了時にステータスと処理時間を記録する。レスポンスは一切変更しない。
// ハンドラーがパニックした場合は記録したうえでそのまま再パニックする。
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path

		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = "unknown"
		}

		logger.Info("リクエストを受信しました",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", clientIP),
			zap.Any("query", c.Request.URL.Query()),
			zap.String("request_id", GetRequestID(c)),
		)

		defer func() {
			if r := recover(); r != nil {
				logger.Error("リクエスト処理中にパニックが発生しました",
					zap.String("method", method),
					zap.String("path", path),
					zap.Any("panic", r),
					zap.Duration("elapsed", time.Since(start)),
				)
				panic(r)
			}
		}()

		c.Next()

		for _, e := range c.Errors {
			logger.Error("リクエスト処理中にエラーが発生しました",
				zap.String("method", method),
				zap.String("path", path),
				zap.Error(e.Err),
			)
		}

		logger.Info("リクエストが完了しました",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
