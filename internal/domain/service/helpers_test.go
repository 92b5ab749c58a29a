package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/contract"
)

// === test doubles ===

// chatFunc adapts a function to the ChatClient interface.
type chatFunc func(ctx context.Context, req ChatRequest) (string, error)

func (f chatFunc) Chat(ctx context.Context, req ChatRequest) (string, error) {
	return f(ctx, req)
}

type scriptStep struct {
	text string
	err  error
}

// scriptedClient pops a per-model queue of responses. Safe for the engine's
// concurrent fan-outs. An exhausted queue repeats its last step so tests do
// not have to count ladder attempts exactly.
type scriptedClient struct {
	mu     sync.Mutex
	queues map[string][]scriptStep
	calls  []ChatRequest
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{queues: make(map[string][]scriptStep)}
}

func (c *scriptedClient) script(model string, steps ...scriptStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[model] = append(c.queues[model], steps...)
}

func (c *scriptedClient) reply(model, text string) {
	c.script(model, scriptStep{text: text})
}

func (c *scriptedClient) fail(model string, err error) {
	c.script(model, scriptStep{err: err})
}

func (c *scriptedClient) Chat(_ context.Context, req ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)

	queue := c.queues[req.Model]
	if len(queue) == 0 {
		return "", errors.New("no script for model " + req.Model)
	}
	step := queue[0]
	if len(queue) > 1 {
		c.queues[req.Model] = queue[1:]
	}
	return step.text, step.err
}

func (c *scriptedClient) callsFor(model string) []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ChatRequest
	for _, call := range c.calls {
		if call.Model == model {
			out = append(out, call)
		}
	}
	return out
}

// countingHook tallies hook signals for assertions.
type countingHook struct {
	mu           sync.Mutex
	stageCalls   map[string]int
	repairs      []string
	coercions    int
	adjudication int
	synthetic    map[string]int
}

func newCountingHook() *countingHook {
	return &countingHook{stageCalls: make(map[string]int), synthetic: make(map[string]int)}
}

func (h *countingHook) OnStageCall(stage, model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stageCalls[stage]++
}

func (h *countingHook) OnLadderRepair(attempt string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.repairs = append(h.repairs, attempt)
}

func (h *countingHook) OnCoercion() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.coercions++
}

func (h *countingHook) OnAdjudication() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adjudication++
}

func (h *countingHook) OnSynthetic(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.synthetic[stage]++
}

// === fixtures ===

var testGenerators = []string{
	"openai/gen-a",
	"anthropic/gen-b",
	"google/gen-c",
	"x-ai/gen-d",
}

// Distinctive, evidence-bearing stage-1 answers. Each carries a rare token
// long enough for the evidence gate to latch onto.
var testAnswers = map[string]string{
	"openai/gen-a":    "The mitochondria produces ATP through oxidative phosphorylation.",
	"anthropic/gen-b": "Photosynthesis converts sunlight into chemical energy in chloroplasts.",
	"google/gen-c":    "Thermodynamics forbids perpetual motion machines of both kinds.",
	"x-ai/gen-d":      "Electromagnetism unifies electric and magnetic phenomena via Maxwell.",
}

func testConfig() EngineConfig {
	return EngineConfig{
		Stage1Models:         testGenerators,
		Stage2Models:         testGenerators,
		ChairmanModel:        "openai/chairman",
		AdjudicatorModel:     "deepseek/adjudicator",
		AdjudicatorFallbacks: []string{"qwen/fallback"},
		AdjudicateEnabled:    true,
		MinNonPartial:        3,
		EvidenceMinLines:     3,
		HelperEnabled:        false,
		HelperModel:          "google/helper",
		HelperTriggerChars:   120000,
		MaxTokens:            1024,
	}
}

func newTestEngine(client ChatClient, cfg EngineConfig, hooks EngineHook) *Engine {
	return NewEngine(client, contract.NewRegistry(zap.NewNop()), cfg, zap.NewNop(), hooks)
}

// scriptGenerators loads one stage-1 answer per generator.
func scriptGenerators(client *scriptedClient) {
	for _, model := range testGenerators {
		client.reply(model, testAnswers[model])
	}
}

// goodVerdict builds an evidence-rich canonical verdict with the given
// final ordering, e.g. goodVerdict("A > B > C > D").
func goodVerdict(order string) string {
	lines := []string{
		"Response A: Strength: explains mitochondria and oxidative steps; Flaw: no caveats.",
		"Response B: Strength: covers photosynthesis in chloroplasts; Flaw: dense prose.",
		"Response C: Strength: cites thermodynamics and perpetual motion; Flaw: terse.",
		"Response D: Strength: grounds electromagnetism in Maxwell; Flaw: no examples.",
	}
	parts := strings.Split(order, ">")
	for i, p := range parts {
		parts[i] = "Response " + strings.TrimSpace(p)
	}
	return strings.Join(lines, "\n") + "\nFINAL_RANKING: " + strings.Join(parts, " > ")
}

// scriptJudges loads one identical verdict for every judge.
func scriptJudges(client *scriptedClient, verdict string) {
	for _, model := range testGenerators {
		client.reply(model, verdict)
	}
}
