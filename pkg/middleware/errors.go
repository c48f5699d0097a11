package middleware

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse はクライアントへ返すエラーレスポンスの共通形式。
type ErrorResponse struct {
	// Error はエラーの種類。
	Error string `json:"error"`
	// Message は利用者向けの説明。
	Message string `json:"message"`
	// StatusCode はHTTPステータスコード。
	StatusCode int `json:"status_code"`
	// Path はリクエストされたパス。
	Path string `json:"path"`
}

// AbortWithError は共通形式のエラーレスポンスを返してリクエストを中断する。
func AbortWithError(c *gin.Context, status int, errorName, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:      errorName,
		Message:    message,
		StatusCode: status,
		Path:       c.Request.URL.Path,
	})
}
