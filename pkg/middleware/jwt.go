package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/campus/pkg/auth"
	"go.uber.org/zap"
)

// contextKeyPrincipal はGinコンテキストに認証済みPrincipalを格納するキー。
const contextKeyPrincipal = "principal"

// TokenVerifier はBearerトークンを検証してPrincipalを返す。
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// BearerAuth はBearerトークンを検証するGinミドルウェアを返す。
// 失敗理由（ヘッダー欠落、署名不正、期限切れ、形式不正）はログにのみ残し、
// クライアントには常に同じ401レスポンスを返す。
// 検証に成功した場合、コンテキストにPrincipalを設定する。
func BearerAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || tokenString == "" {
			logger.Info("Bearerトークンがありません", zap.String("path", c.Request.URL.Path))
			abortUnauthorized(c)
			return
		}

		principal, err := verifier.Verify(tokenString)
		if err != nil {
			logger.Info("トークンの検証に失敗しました",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			abortUnauthorized(c)
			return
		}

		c.Set(contextKeyPrincipal, principal)
		c.Next()
	}
}

// GetPrincipal はGinコンテキストから認証済みPrincipalを取得する。
// BearerAuthミドルウェアが事前に適用されている必要がある。
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(contextKeyPrincipal)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}

func abortUnauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	AbortWithError(c, http.StatusUnauthorized, "Unauthorized", "Could not validate credentials")
}
