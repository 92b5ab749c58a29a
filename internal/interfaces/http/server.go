package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/application/usecase"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/monitoring"
	"github.com/llmcouncil/llmcouncil/backend/internal/interfaces/http/handlers"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host string
	Port int
	Mode string // local, production
}

// NewServer 创建HTTP服务器
func NewServer(
	cfg Config,
	uc *usecase.CouncilUseCase,
	monitor *monitoring.Monitor,
	diag handlers.Diagnostics,
	logger *zap.Logger,
) *Server {
	// 设置Gin模式
	if cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	// 初始化处理器
	conversationHandler := handlers.NewConversationHandler(uc, logger)
	councilHandler := handlers.NewCouncilHandler(uc, logger)
	debugHandler := handlers.NewDebugHandler(monitor, diag, logger)

	setupRoutes(router, conversationHandler, councilHandler, debugHandler, monitor)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(
	router *gin.Engine,
	conversationHandler *handlers.ConversationHandler,
	councilHandler *handlers.CouncilHandler,
	debugHandler *handlers.DebugHandler,
	monitor *monitoring.Monitor,
) {
	// 服务横幅
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "llm-council",
			"status":  "ok",
		})
	})

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// Prometheus 文本指标
	router.GET("/metrics", gin.WrapH(monitor.PrometheusHandler()))

	api := router.Group("/api")
	{
		api.GET("/conversations", conversationHandler.List)
		api.POST("/conversations", conversationHandler.Create)
		api.GET("/conversations/:id", conversationHandler.Get)
		api.PATCH("/conversations/:id", conversationHandler.Rename)
		api.DELETE("/conversations/:id", conversationHandler.Delete)

		api.POST("/conversations/:id/messages", councilHandler.SendMessage)
		api.POST("/conversations/:id/messages/stream", councilHandler.StreamMessage)

		handlers.RegisterDebugRoutes(api, debugHandler)
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
