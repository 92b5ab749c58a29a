package monitoring

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Metrics 指标收集器
type Metrics struct {
	// 议会运行计数
	CouncilsTotal   uint64
	CouncilsSuccess uint64
	CouncilsFailed  uint64

	// 分阶段模型调用
	Stage1Calls uint64
	Stage2Calls uint64
	Stage3Calls uint64

	// 评审修复阶梯
	LadderRepairs uint64
	Coercions     uint64
	Adjudications uint64

	// 合成兜底条目
	SyntheticEntries uint64

	// Token 消耗
	TokensUsed uint64

	// 延迟 (纳秒)
	CouncilLatencySum   uint64
	CouncilLatencyCount uint64

	// 错误
	ErrorsTotal uint64

	// 启动时间
	StartTime time.Time
}

// Monitor 性能监控器
type Monitor struct {
	metrics *Metrics
	logger  *zap.Logger
	mu      sync.RWMutex

	// 历史数据 (用于图表)
	history      []MetricsSnapshot
	historyLimit int
}

// MetricsSnapshot 指标快照
type MetricsSnapshot struct {
	Timestamp         time.Time
	CouncilsPerMinute float64
	ModelCallsPerMin  float64
	AvgLatencyMs      float64
	MemoryMB          float64
	Goroutines        int
}

// NewMonitor 创建监控器
func NewMonitor(logger *zap.Logger) *Monitor {
	return &Monitor{
		metrics: &Metrics{
			StartTime: time.Now(),
		},
		logger:       logger,
		history:      make([]MetricsSnapshot, 0, 100),
		historyLimit: 100,
	}
}

// 计数方法
func (m *Monitor) IncCouncilTotal()   { atomic.AddUint64(&m.metrics.CouncilsTotal, 1) }
func (m *Monitor) IncCouncilSuccess() { atomic.AddUint64(&m.metrics.CouncilsSuccess, 1) }
func (m *Monitor) IncCouncilFailed()  { atomic.AddUint64(&m.metrics.CouncilsFailed, 1) }
func (m *Monitor) IncLadderRepair()   { atomic.AddUint64(&m.metrics.LadderRepairs, 1) }
func (m *Monitor) IncCoercion()       { atomic.AddUint64(&m.metrics.Coercions, 1) }
func (m *Monitor) IncAdjudication()   { atomic.AddUint64(&m.metrics.Adjudications, 1) }
func (m *Monitor) IncSynthetic()      { atomic.AddUint64(&m.metrics.SyntheticEntries, 1) }
func (m *Monitor) IncError()          { atomic.AddUint64(&m.metrics.ErrorsTotal, 1) }

// IncStageCall 按阶段累计模型调用
func (m *Monitor) IncStageCall(stage string) {
	switch stage {
	case "stage1":
		atomic.AddUint64(&m.metrics.Stage1Calls, 1)
	case "stage2":
		atomic.AddUint64(&m.metrics.Stage2Calls, 1)
	default:
		// stage3, stage3_helper, stage3_repair 都归入 stage3
		atomic.AddUint64(&m.metrics.Stage3Calls, 1)
	}
}

func (m *Monitor) AddTokensUsed(n int) {
	if n > 0 {
		atomic.AddUint64(&m.metrics.TokensUsed, uint64(n))
	}
}

func (m *Monitor) RecordCouncilLatency(d time.Duration) {
	atomic.AddUint64(&m.metrics.CouncilLatencySum, uint64(d.Nanoseconds()))
	atomic.AddUint64(&m.metrics.CouncilLatencyCount, 1)
}

func (m *Monitor) modelCallsTotal() uint64 {
	return atomic.LoadUint64(&m.metrics.Stage1Calls) +
		atomic.LoadUint64(&m.metrics.Stage2Calls) +
		atomic.LoadUint64(&m.metrics.Stage3Calls)
}

// GetStats 获取当前统计
func (m *Monitor) GetStats() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptime := time.Since(m.metrics.StartTime)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.CouncilLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.CouncilLatencySum)) / float64(count) / 1e6 // ms
	}

	return map[string]interface{}{
		"uptime_seconds":    uptime.Seconds(),
		"councils_total":    atomic.LoadUint64(&m.metrics.CouncilsTotal),
		"councils_success":  atomic.LoadUint64(&m.metrics.CouncilsSuccess),
		"councils_failed":   atomic.LoadUint64(&m.metrics.CouncilsFailed),
		"stage1_calls":      atomic.LoadUint64(&m.metrics.Stage1Calls),
		"stage2_calls":      atomic.LoadUint64(&m.metrics.Stage2Calls),
		"stage3_calls":      atomic.LoadUint64(&m.metrics.Stage3Calls),
		"ladder_repairs":    atomic.LoadUint64(&m.metrics.LadderRepairs),
		"coercions":         atomic.LoadUint64(&m.metrics.Coercions),
		"adjudications":     atomic.LoadUint64(&m.metrics.Adjudications),
		"synthetic_entries": atomic.LoadUint64(&m.metrics.SyntheticEntries),
		"tokens_used":       atomic.LoadUint64(&m.metrics.TokensUsed),
		"errors_total":      atomic.LoadUint64(&m.metrics.ErrorsTotal),
		"avg_latency_ms":    avgLatency,
		"memory_mb":         float64(memStats.Alloc) / 1024 / 1024,
		"goroutines":        runtime.NumGoroutine(),
	}
}

// Snapshot 创建快照并保存
func (m *Monitor) Snapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptimeMin := time.Since(m.metrics.StartTime).Minutes()
	councils := atomic.LoadUint64(&m.metrics.CouncilsTotal)

	avgLatency := float64(0)
	if count := atomic.LoadUint64(&m.metrics.CouncilLatencyCount); count > 0 {
		avgLatency = float64(atomic.LoadUint64(&m.metrics.CouncilLatencySum)) / float64(count) / 1e6
	}

	snapshot := MetricsSnapshot{
		Timestamp:         time.Now(),
		CouncilsPerMinute: float64(councils) / uptimeMin,
		ModelCallsPerMin:  float64(m.modelCallsTotal()) / uptimeMin,
		AvgLatencyMs:      avgLatency,
		MemoryMB:          float64(memStats.Alloc) / 1024 / 1024,
		Goroutines:        runtime.NumGoroutine(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[1:]
	}
	m.mu.Unlock()

	return snapshot
}

// GetHistory 获取历史快照
func (m *Monitor) GetHistory() []MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]MetricsSnapshot, len(m.history))
	copy(result, m.history)
	return result
}

// StartCollector 启动定期收集
func (m *Monitor) StartCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Snapshot()
		}
	}
}

// DashboardData 仪表盘数据
type DashboardData struct {
	Stats   map[string]interface{} `json:"stats"`
	History []MetricsSnapshot      `json:"history"`
}

// GetDashboardData 获取仪表盘数据
func (m *Monitor) GetDashboardData() *DashboardData {
	return &DashboardData{
		Stats:   m.GetStats(),
		History: m.GetHistory(),
	}
}
