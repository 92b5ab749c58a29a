package contract

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// BaseContractID is the factory base contract. It is always first in any
// resolved stack and can never be removed or overridden by a pack.
const BaseContractID = "factory_truth_v1"

// Spec 合同定义: 一段系统提示 + 可选的主席附加条款
type Spec struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	SystemPrompt     string `yaml:"system_prompt"`
	ChairmanAddendum string `yaml:"chairman_addendum"`
}

// Message is a system message produced from a contract stack. It mirrors the
// chat transport shape so callers can append it directly.
type Message struct {
	Role    string
	Content string
}

var factoryTruthV1 = Spec{
	ID:   BaseContractID,
	Name: "Factory Truth-First v1",
	SystemPrompt: "You are running inside a product-agnostic LLM Council factory.\n" +
		"Factory Contract (must follow):\n" +
		"1) Truth-first: prioritize what is most likely true about the user's real problem; state uncertainty explicitly.\n" +
		"2) Separate facts from guesses: tag non-trivial claims as [Observed] / [Assumed] / [Inferred]; do not blur them.\n" +
		"3) Ask at most 1 killer question only if it would materially change the recommendation; otherwise proceed with best-guess + assumptions.\n" +
		"4) Smallest valuable action: propose something testable this week with minimal build; avoid dependencies and platform thinking.\n" +
		"5) One primary risk: name the single highest-risk failure mode and add one simple guardrail.\n" +
		"6) One metric that matters: pick one leading indicator; define a clear pass/fail threshold.\n" +
		"7) Design for the edge user: handle the most constrained path (low attention, low literacy, high stress) by default.\n" +
		"8) Make it legible: include a short rationale and a clear next step; no jargon; no sprawling option lists.\n" +
		"9) Creativity inside constraints: propose at most 2 variants (Conservative baseline + Bold alternative), both testable.\n" +
		"10) Synthesis discipline: do not introduce new mechanisms unless you label them [New Proposal] and explain why.\n" +
		"Keep outputs concise and practical.\n" +
		"11) No emojis: do not use emojis unless the user explicitly uses emojis first.\n",
	ChairmanAddendum: "Chairman: ensure the final answer is traceable to council inputs. " +
		"If you introduce anything not present in Stage 1/2, label it [New Proposal] and justify it briefly.\n",
}

var eldercareSafetyV1 = Spec{
	ID:   "eldercare_safety_v1",
	Name: "Eldercare Safety v1",
	SystemPrompt: "Product Addendum (elder-care safety):\n" +
		"- Do not provide medical diagnosis or dosing advice. Default to safe-hold instructions and escalation.\n" +
		"- For scam-risk: prioritize immediate 'stop/hold' guidance; avoid asking for sensitive info.\n" +
		"- For caregiver escalation: prioritize burnout controls (rate limits, batching, quiet hours) while preserving safety overrides.\n" +
		"- Be explicit about consent/privacy when capturing audio; keep retention minimal.\n",
	ChairmanAddendum: "Chairman: keep the result minimal and safe; avoid compliance theater; prefer simple guardrails.\n",
}

// Registry 合同注册表。内置合同 + 可选 YAML 包, 支持热重载, 读写加锁。
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]Spec
	logger *zap.Logger
}

// NewRegistry creates a registry seeded with the built-in contracts.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		specs:  make(map[string]Spec),
		logger: logger.With(zap.String("component", "contract_registry")),
	}
	r.specs[factoryTruthV1.ID] = factoryTruthV1
	r.specs[eldercareSafetyV1.ID] = eldercareSafetyV1
	return r
}

// Get returns the spec for a contract id.
func (r *Registry) Get(id string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[id]
	return spec, ok
}

// IDs returns every registered contract id, base first, rest sorted by id.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := []string{BaseContractID}
	for id := range r.specs {
		if id != BaseContractID {
			ids = append(ids, id)
		}
	}
	sortTail(ids)
	return ids
}

func sortTail(ids []string) {
	tail := ids[1:]
	for i := 1; i < len(tail); i++ {
		for j := i; j > 0 && tail[j] < tail[j-1]; j-- {
			tail[j], tail[j-1] = tail[j-1], tail[j]
		}
	}
}

// ResolveStack parses a comma-separated contract stack into an ordered id
// list. Unknown ids are dropped with a warning, duplicates keep their first
// occurrence, and the base contract is removed and re-prepended so it is
// always element 0. The result is stable for a given registry state.
func (r *Registry) ResolveStack(csv string) []string {
	seen := map[string]bool{BaseContractID: true}
	stack := []string{BaseContractID}

	for _, part := range strings.Split(csv, ",") {
		id := strings.TrimSpace(part)
		if id == "" || seen[id] {
			continue
		}
		if _, ok := r.Get(id); !ok {
			r.logger.Warn("Unknown contract id dropped from stack", zap.String("contract_id", id))
			continue
		}
		seen[id] = true
		stack = append(stack, id)
	}
	return stack
}

// SystemMessages returns one system message per contract in the stack, in
// stack order. Used for council members (generators and judges do not see
// chairman addenda).
func (r *Registry) SystemMessages(stack []string) []Message {
	msgs := make([]Message, 0, len(stack))
	for _, id := range stack {
		spec, ok := r.Get(id)
		if !ok {
			continue
		}
		msgs = append(msgs, Message{Role: "system", Content: spec.SystemPrompt})
	}
	return msgs
}

// ChairmanSystemMessages is SystemMessages with each contract's chairman
// addendum appended when present.
func (r *Registry) ChairmanSystemMessages(stack []string) []Message {
	msgs := make([]Message, 0, len(stack))
	for _, id := range stack {
		spec, ok := r.Get(id)
		if !ok {
			continue
		}
		content := spec.SystemPrompt
		if spec.ChairmanAddendum != "" {
			content = content + "\n" + spec.ChairmanAddendum
		}
		msgs = append(msgs, Message{Role: "system", Content: content})
	}
	return msgs
}

// Summary 生成用于日志的简短描述
func (r *Registry) Summary(stack []string) string {
	parts := make([]string, 0, len(stack))
	for _, id := range stack {
		if spec, ok := r.Get(id); ok {
			parts = append(parts, id+" ("+spec.Name+")")
		}
	}
	return "Contracts applied: " + strings.Join(parts, " + ")
}
