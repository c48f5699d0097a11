package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/campus/pkg/httpserver"
	"github.com/nao1215/campus/pkg/middleware"
	"go.uber.org/zap"
)

// Server はコースサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// store はコースの永続化を行う。
	store *Store
	// logger は構造化ロガー。
	logger *zap.Logger
}

// NewServer は新しいコースサーバーを生成する。
func NewServer(port string, store *Store, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(logger))

	s := &Server{
		router: router,
		port:   port,
		store:  store,
		logger: logger,
	}
	s.setupRoutes()
	return s
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
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Course Microservice is running"})
	})
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "course"})
	})

	courses := s.router.Group("/api/courses")
	{
		courses.GET("", s.handleList())
		courses.POST("", s.handleCreate())
		courses.GET("/:id", s.handleGet())
		courses.PUT("/:id", s.handleUpdate())
		courses.DELETE("/:id", s.handleDelete())
	}
}

// detail は{"detail": ...}形式のエラーレスポンスを返す。
func detail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": message})
}

// courseID はパスパラメータのIDを解析する。解析できない場合は422を返してfalseを返す。
func courseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("course id must be an integer: %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// storeFailure はストアのエラーをレスポンスに変換する。
func (s *Server) storeFailure(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		detail(c, http.StatusNotFound, "Course not found")
		return
	}
	s.logger.Error("コースの操作に失敗しました", zap.Error(err))
	detail(c, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		courses, err := s.store.List(c.Request.Context())
		if err != nil {
			s.storeFailure(c, err)
			return
		}
		c.JSON(http.StatusOK, courses)
	}
}

func (s *Server) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := courseID(c)
		if !ok {
			return
		}
		course, err := s.store.Get(c.Request.Context(), id)
		if err != nil {
			s.storeFailure(c, err)
			return
		}
		c.JSON(http.StatusOK, course)
	}
}

// handleCreate はコース作成を処理するハンドラを返す。
// 必須フィールドが欠けている場合は422を返す。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in CreateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		course, err := s.store.Create(c.Request.Context(), in)
		if err != nil {
			s.storeFailure(c, err)
			return
		}
		s.logger.Info("コースを作成しました", zap.Int64("id", course.ID), zap.String("code", course.Code))
		c.JSON(http.StatusCreated, course)
	}
}

// handleUpdate はコースの部分更新を処理するハンドラを返す。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := courseID(c)
		if !ok {
			return
		}
		var in UpdateInput
		if err := c.ShouldBindJSON(&in); err != nil {
			detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		course, err := s.store.Update(c.Request.Context(), id, in)
		if err != nil {
			s.storeFailure(c, err)
			return
		}
		c.JSON(http.StatusOK, course)
	}
}

func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := courseID(c)
		if !ok {
			return
		}
		if err := s.store.Delete(c.Request.Context(), id); err != nil {
			s.storeFailure(c, err)
			return
		}
		s.logger.Info("コースを削除しました", zap.Int64("id", id))
		c.Status(http.StatusNoContent)
	}
}
