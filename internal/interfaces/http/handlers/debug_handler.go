package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/monitoring"
)

// DebugHandler 调试 API 处理器
type DebugHandler struct {
	monitor *monitoring.Monitor
	diag    Diagnostics
	logger  *zap.Logger
}

// Diagnostics 最近模型错误来源
type Diagnostics interface {
	Recent() []service.DiagnosticEntry
}

// NewDebugHandler 创建调试处理器
func NewDebugHandler(monitor *monitoring.Monitor, diag Diagnostics, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{
		monitor: monitor,
		diag:    diag,
		logger:  logger,
	}
}

// GetErrors 获取最近议会错误 (环形缓冲, 新→旧)
// GET /api/debug/errors
func (h *DebugHandler) GetErrors(c *gin.Context) {
	if h.diag == nil {
		c.JSON(http.StatusOK, gin.H{"errors": []interface{}{}, "count": 0})
		return
	}
	entries := h.diag.Recent()
	c.JSON(http.StatusOK, gin.H{
		"errors": entries,
		"count":  len(entries),
	})
}

// GetMetrics 获取性能指标
// GET /api/debug/metrics
func (h *DebugHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetStats())
}

// GetDashboard 获取仪表盘数据
// GET /api/debug/dashboard
func (h *DebugHandler) GetDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.GetDashboardData())
}

// GetRuntime 获取运行时信息
// GET /api/debug/runtime
func (h *DebugHandler) GetRuntime(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c.JSON(http.StatusOK, gin.H{
		"go_version":    runtime.Version(),
		"num_cpu":       runtime.NumCPU(),
		"num_goroutine": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
			"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
			"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
			"num_gc":         memStats.NumGC,
		},
		"timestamp": time.Now().Unix(),
	})
}

// RegisterDebugRoutes 注册调试路由
func RegisterDebugRoutes(router *gin.RouterGroup, handler *DebugHandler) {
	debug := router.Group("/debug")
	{
		debug.GET("/errors", handler.GetErrors)
		debug.GET("/metrics", handler.GetMetrics)
		debug.GET("/dashboard", handler.GetDashboard)
		debug.GET("/runtime", handler.GetRuntime)
	}
}
