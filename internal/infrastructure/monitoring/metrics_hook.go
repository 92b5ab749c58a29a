package monitoring

import (
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
)

// MetricsHook is an EngineHook that instruments the council engine with
// Monitor counters. Wire it into the engine at construction time.
//
// Usage:
//
//	monitor := monitoring.NewMonitor(logger)
//	hook := monitoring.NewMetricsHook(monitor)
//	engine := service.NewEngine(client, contracts, cfg, logger, hook)
type MetricsHook struct {
	monitor *Monitor
}

// NewMetricsHook creates a metrics-collecting engine hook.
func NewMetricsHook(monitor *Monitor) *MetricsHook {
	return &MetricsHook{monitor: monitor}
}

// Compile-time interface check
var _ service.EngineHook = (*MetricsHook)(nil)

// OnStageCall is called before each model request, tagged by stage.
func (h *MetricsHook) OnStageCall(stage, model string) {
	h.monitor.IncStageCall(stage)
}

// OnLadderRepair is called when a judge descends one repair rung.
func (h *MetricsHook) OnLadderRepair(attempt string) {
	h.monitor.IncLadderRepair()
}

// OnCoercion is called when a verdict needed canonical rebuilding.
func (h *MetricsHook) OnCoercion() {
	h.monitor.IncCoercion()
}

// OnAdjudication is called when the consensus gate summons an adjudicator.
func (h *MetricsHook) OnAdjudication() {
	h.monitor.IncAdjudication()
}

// OnSynthetic is called when a stage falls back to a synthetic entry.
func (h *MetricsHook) OnSynthetic(stage string) {
	h.monitor.IncSynthetic()
}
