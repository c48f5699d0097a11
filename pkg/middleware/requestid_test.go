package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TestRequestID はRequestIDミドルウェアを検証する。
func TestRequestID(t *testing.T) {
	t.Parallel()

	newRouter := func(got *string) *gin.Engine {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/", func(c *gin.Context) {
			*got = GetRequestID(c)
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("ヘッダーが無い場合UUIDが割り当てられること", func(t *testing.T) {
		t.Parallel()

		var got string
		w := httptest.NewRecorder()
		newRouter(&got).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("リクエストID %q がUUIDではない: %v", got, err)
		}
		if w.Header().Get(HeaderRequestID) != got {
			t.Errorf("X-Request-ID = %q, want %q", w.Header().Get(HeaderRequestID), got)
		}
	})

	t.Run("クライアントのリクエストIDが引き継がれること", func(t *testing.T) {
		t.Parallel()

		var got string
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		w := httptest.NewRecorder()
		newRouter(&got).ServeHTTP(w, req)

		if got != "req-123" {
			t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
		}
		if w.Header().Get(HeaderRequestID) != "req-123" {
			t.Errorf("X-Request-ID = %q, want %q", w.Header().Get(HeaderRequestID), "req-123")
		}
	})
}
