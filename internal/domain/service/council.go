package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/contract"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/role"
)

// EngineConfig 议会引擎的全部可调参数, 由配置层装配
type EngineConfig struct {
	Stage1Models         []string
	Stage2Models         []string
	ChairmanModel        string
	AdjudicatorModel     string
	AdjudicatorFallbacks []string
	AdjudicateEnabled    bool
	MinNonPartial        int
	MinTop1Votes         int // 0 means derive from panel size
	EvidenceMinLines     int
	HelperEnabled        bool
	HelperModel          string
	HelperTriggerChars   int
	MaxTokens            int
	// DefaultContracts is the contract stack used when a run does not
	// supply one (comma-separated ids).
	DefaultContracts string
}

// EngineHook receives engine lifecycle signals. Implementations must be
// cheap and non-blocking; the engine calls them from hot paths.
type EngineHook interface {
	OnStageCall(stage, model string)
	OnLadderRepair(attempt string)
	OnCoercion()
	OnAdjudication()
	OnSynthetic(stage string)
}

// NoOpHook is the default hook when monitoring is not wired.
type NoOpHook struct{}

func (NoOpHook) OnStageCall(stage, model string) {}
func (NoOpHook) OnLadderRepair(attempt string)   {}
func (NoOpHook) OnCoercion()                     {}
func (NoOpHook) OnAdjudication()                 {}
func (NoOpHook) OnSynthetic(stage string)        {}

// DiagnosticEntry is one recorded model failure.
type DiagnosticEntry struct {
	Stage   string    `json:"stage"`
	Model   string    `json:"model"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

const diagnosticsCapacity = 64

// Diagnostics is a bounded ring of recent model failures, shared across
// requests and exposed through the debug endpoint.
type Diagnostics struct {
	mu      sync.Mutex
	entries []DiagnosticEntry
	next    int
	full    bool
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{entries: make([]DiagnosticEntry, diagnosticsCapacity)}
}

func (d *Diagnostics) Record(stage, model string, err error) {
	if err == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[d.next] = DiagnosticEntry{
		Stage:   stage,
		Model:   model,
		Message: err.Error(),
		At:      time.Now().UTC(),
	}
	d.next = (d.next + 1) % len(d.entries)
	if d.next == 0 {
		d.full = true
	}
}

// Recent returns the recorded failures, newest first.
func (d *Diagnostics) Recent() []DiagnosticEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := d.next
	if d.full {
		size = len(d.entries)
	}
	out := make([]DiagnosticEntry, 0, size)
	for i := 1; i <= size; i++ {
		idx := (d.next - i + len(d.entries)) % len(d.entries)
		out = append(out, d.entries[idx])
	}
	return out
}

// Event is one progress notification from a council run. The SSE layer and
// the CLI progress display both consume the same stream.
type Event struct {
	Type        string `json:"type"`
	Count       int    `json:"count,omitempty"`
	Adjudicated bool   `json:"adjudicated,omitempty"`
	Model       string `json:"model,omitempty"`
}

const (
	EventStage1Start    = "stage1_start"
	EventStage1Complete = "stage1_complete"
	EventStage2Start    = "stage2_start"
	EventStage2Complete = "stage2_complete"
	EventStage3Start    = "stage3_start"
	EventStage3Complete = "stage3_complete"
)

// Options are per-run knobs for RunCouncil.
type Options struct {
	// ContractsCSV selects the contract stack; empty falls back to the
	// configured default and the base contract is always prepended.
	ContractsCSV string
	// Events, when set, receives progress events in order. Called
	// synchronously from the engine goroutine.
	Events func(Event)
}

// Engine runs the three-stage council deliberation.
type Engine struct {
	chat      ChatClient
	contracts *contract.Registry
	cfg       EngineConfig
	logger    *zap.Logger
	hooks     EngineHook
	diag      *Diagnostics
}

func NewEngine(chat ChatClient, contracts *contract.Registry, cfg EngineConfig, logger *zap.Logger, hooks EngineHook) *Engine {
	if hooks == nil {
		hooks = NoOpHook{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		chat:      chat,
		contracts: contracts,
		cfg:       cfg,
		logger:    logger,
		hooks:     hooks,
		diag:      NewDiagnostics(),
	}
}

// Diagnostics exposes the failure ring for the debug surface.
func (e *Engine) Diagnostics() *Diagnostics {
	return e.diag
}

// RunCouncil executes the full pipeline: concurrent generation, peer
// ranking with the repair ladder and consensus gate, rank aggregation, and
// chairman synthesis. Cancellation aborts without partial results.
func (e *Engine) RunCouncil(ctx context.Context, prompt string, opts Options) (*entity.CouncilResult, error) {
	if prompt == "" {
		return nil, entity.ErrEmptyPrompt
	}
	emit := opts.Events
	if emit == nil {
		emit = func(Event) {}
	}

	csv := opts.ContractsCSV
	if csv == "" {
		csv = e.cfg.DefaultContracts
	}
	stack := e.contracts.ResolveStack(csv)
	e.logger.Info("Council run starting",
		zap.Strings("contract_stack", stack),
		zap.Int("generators", len(e.cfg.Stage1Models)),
	)

	emit(Event{Type: EventStage1Start})
	stage1, err := e.runStage1(ctx, prompt, stack)
	if err != nil {
		return nil, err
	}
	emit(Event{Type: EventStage1Complete, Count: len(stage1)})

	emit(Event{Type: EventStage2Start})
	stage2, labelToModel, adjudicated, err := e.runStage2(ctx, prompt, stage1)
	if err != nil {
		return nil, err
	}
	emit(Event{Type: EventStage2Complete, Count: len(stage2), Adjudicated: adjudicated})

	labels := make([]string, len(stage1))
	for i := range stage1 {
		labels[i] = entity.LabelForIndex(i)
	}
	aggregates := aggregateRankings(stage2, labels, labelToModel, stage1)

	emit(Event{Type: EventStage3Start})
	stage3 := e.runStage3(ctx, prompt, stage1, stage2, labelToModel, aggregates, stack)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emit(Event{Type: EventStage3Complete, Model: stage3.Model})

	result := &entity.CouncilResult{
		Stage1: stage1,
		Stage2: stage2,
		Stage3: stage3,
		Meta: entity.Meta{
			ContractStack:     stack,
			LabelToModel:      labelToModel,
			ModelRoles:        e.modelRoles(),
			AggregateRankings: aggregates,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	return result, nil
}

func (e *Engine) modelRoles() map[string]string {
	roles := make(map[string]string, len(e.cfg.Stage1Models)+1)
	for _, m := range e.cfg.Stage1Models {
		roles[m] = role.For(m).Role
	}
	roles[e.cfg.ChairmanModel] = role.ChairmanRole.Role
	return roles
}
