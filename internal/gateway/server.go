package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/campus/internal/gateway/forward"
	"github.com/nao1215/campus/pkg/auth"
	"github.com/nao1215/campus/pkg/httpclient"
	"github.com/nao1215/campus/pkg/httpserver"
	"github.com/nao1215/campus/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Version はゲートウェイのバージョン。
const Version = "1.0.0"

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// authority はトークンの発行と検証を行う。
	authority *auth.Authority
	// verifier はユーザー名とパスワードを照合する。
	verifier *auth.Verifier
	// forwarder はバックエンドへの転送を行う。
	forwarder *forward.Forwarder
	// metrics はこのサーバー専用のPrometheusレジストリ。
	metrics *prometheus.Registry
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewServer は設定から新しいGatewayサーバーを生成する。
func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	authority, err := auth.NewAuthority(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークン発行者の生成に失敗: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	verifier := auth.NewVerifier(cfg.Users,
		auth.WithHasher(auth.BcryptHasher{Cost: cfg.BcryptCost}),
		auth.WithLogger(logger),
		auth.WithRegisterer(reg),
	)

	forwarder := forward.New(
		forward.Registry(cfg.Services),
		httpclient.New(cfg.ForwardTimeout),
		forward.WithTimeout(cfg.ForwardTimeout),
		forward.WithLogger(logger),
		forward.WithRegisterer(reg),
	)

	router := gin.New()
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))
	router.Use(middleware.NewHTTPMetrics("gateway", reg).Handler())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		authority: authority,
		verifier:  verifier,
		forwarder: forwarder,
		metrics:   reg,
		logger:    logger,
	}
	s.setupRoutes()

	return s, nil
}

// Handler はサーバーのHTTPハンドラーを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
func (s *Server) Run(ctx context.Context) error {
	return httpserver.Serve(ctx, fmt.Sprintf(":%s", s.port), s.router, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot())
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))

	gw := s.router.Group("/gateway")

	// 認証（ログインのみ認証不要）
	gw.POST("/auth/login", s.handleLogin())
	protected := gw.Group("")
	protected.Use(middleware.BearerAuth(s.authority, s.logger))
	{
		protected.GET("/auth/me", s.handleMe())

		// 学生（転送）
		protected.Any("/students", s.handleForward("student", "/api/students"))
		protected.Any("/students/:id", s.handleForward("student", "/api/students"))

		// コース（転送）
		protected.Any("/courses", s.handleForward("course", "/api/courses"))
		protected.Any("/courses/:id", s.handleForward("course", "/api/courses"))
	}
}

// handleRoot はゲートウェイの情報を返すハンドラを返す。
func (s *Server) handleRoot() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":            "API Gateway is running",
			"available_services": s.forwarder.Services(),
			"version":            Version,
		})
	}
}

// loginRequest はログインリクエストのJSON構造。
// 空文字列は認証失敗として扱い、フィールドの欠落のみを入力エラーとする。
type loginRequest struct {
	Username *string `json:"username" binding:"required"`
	Password *string `json:"password" binding:"required"`
}

// loginResponse はログイン成功時のJSON構造。
type loginResponse struct {
	// AccessToken は発行したBearerトークン。
	AccessToken string `json:"access_token"`
	// TokenType は常に"bearer"。
	TokenType string `json:"token_type"`
	// ExpiresIn はトークンの有効期間（秒）。
	ExpiresIn int64 `json:"expires_in"`
	// User は認証されたユーザー。
	User auth.Principal `json:"user"`
}

// handleLogin はユーザー名とパスワードを照合してトークンを発行するハンドラを返す。
// 未登録のユーザーとパスワード誤りは区別せずに401を返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, http.StatusUnprocessableEntity,
				"Validation Error", "username and password are required")
			return
		}

		principal, ok := s.verifier.Authenticate(*req.Username, *req.Password)
		if !ok {
			s.logger.Warn("ログインに失敗しました", zap.String("username", *req.Username))
			c.Header("WWW-Authenticate", "Bearer")
			middleware.AbortWithError(c, http.StatusUnauthorized,
				"Authentication Failed", "Invalid username or password")
			return
		}

		token, err := s.authority.Issue(principal, 0)
		if err != nil {
			s.logger.Error("トークンの発行に失敗しました", zap.Error(err))
			middleware.AbortWithError(c, http.StatusInternalServerError,
				"Internal Server Error", "An unexpected error occurred while processing your request")
			return
		}

		s.logger.Info("ログインに成功しました",
			zap.String("username", principal.Username),
			zap.String("auth_mode", string(s.verifier.Mode())),
		)
		c.JSON(http.StatusOK, loginResponse{
			AccessToken: token,
			TokenType:   "bearer",
			ExpiresIn:   int64(s.authority.TTL().Seconds()),
			User:        principal,
		})
	}
}

// handleMe は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := middleware.GetPrincipal(c)
		if !ok {
			middleware.AbortWithError(c, http.StatusUnauthorized, "Unauthorized", "Could not validate credentials")
			return
		}
		c.JSON(http.StatusOK, principal)
	}
}

// handleForward は指定サービスへリクエストを転送するハンドラを返す。
// IDは整数、POSTとPUTのボディはJSONである必要がある。
func (s *Server) handleForward(service, basePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := basePath
		if id := c.Param("id"); id != "" {
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				middleware.AbortWithError(c, http.StatusUnprocessableEntity,
					"Validation Error", fmt.Sprintf("resource id must be an integer: %q", id))
				return
			}
			path += "/" + id
		}
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		var body []byte
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil || !json.Valid(body) {
				middleware.AbortWithError(c, http.StatusUnprocessableEntity,
					"Validation Error", "request body must be valid JSON")
				return
			}
		}

		ctx := httpclient.WithRequestID(c.Request.Context(), middleware.GetRequestID(c))
		if principal, ok := middleware.GetPrincipal(c); ok {
			ctx = httpclient.WithUsername(ctx, principal.Username)
		}

		outcome := s.forwarder.Forward(ctx, forward.Request{
			Service: service,
			Path:    path,
			Method:  c.Request.Method,
			Body:    body,
		})
		s.writeOutcome(c, outcome)
	}
}

// errorResponse は転送失敗時のJSON構造。
type errorResponse struct {
	middleware.ErrorResponse
	Service           string          `json:"service,omitempty"`
	BackendPath       string          `json:"backend_path,omitempty"`
	AvailableServices []string        `json:"available_services,omitempty"`
	AllowedMethods    []string        `json:"allowed_methods,omitempty"`
	URL               string          `json:"url,omitempty"`
	Timeout           string          `json:"timeout,omitempty"`
	Detail            json.RawMessage `json:"detail,omitempty"`
}

// writeOutcome は転送結果をそのままHTTPレスポンスに変換する。
func (s *Server) writeOutcome(c *gin.Context, o forward.Outcome) {
	if o.OK() {
		if len(o.Body) == 0 {
			c.Status(o.Status)
			return
		}
		c.Data(o.Status, "application/json", o.Body)
		return
	}

	d := o.Diagnostic
	if d == nil {
		d = &forward.Diagnostic{
			Error:   "Internal Server Error",
			Message: "An unexpected error occurred while processing your request",
		}
	}
	if o.Err != nil {
		_ = c.Error(o.Err)
	}
	c.AbortWithStatusJSON(o.Status, errorResponse{
		ErrorResponse: middleware.ErrorResponse{
			Error:      d.Error,
			Message:    d.Message,
			StatusCode: o.Status,
			Path:       c.Request.URL.Path,
		},
		Service:           d.Service,
		BackendPath:       d.Path,
		AvailableServices: d.AvailableServices,
		AllowedMethods:    d.AllowedMethods,
		URL:               d.URL,
		Timeout:           d.Timeout,
		Detail:            d.Detail,
	})
}
