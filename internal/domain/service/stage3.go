package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/contract"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/role"
)

const (
	stage3Temperature = 0.2
	helperTemperature = 0.1
	// truncatedResponseChars bounds non-top responses in the shrunk prompt.
	truncatedResponseChars = 4000
)

// runStage3 composes the final answer. The chairman sees everything: the
// prompt, stage-1 answers with their contract evals, stage-2 verdicts, and
// the aggregate table. One repair pass runs when the draft hard-fails its
// contract.
func (e *Engine) runStage3(ctx context.Context, userPrompt string, stage1 []entity.Stage1Entry, stage2 []entity.Stage2Entry, labelToModel map[string]string, aggregates []entity.AggregateRanking, stack []string) entity.Stage3Result {
	chairman := e.cfg.ChairmanModel
	prompt := e.buildChairmanPrompt(ctx, userPrompt, stage1, stage2, labelToModel, aggregates)

	var msgs []ChatMessage
	for _, m := range e.contracts.ChairmanSystemMessages(stack) {
		msgs = append(msgs, ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, SystemMessage(role.ChairmanRole.SystemPrompt))
	msgs = append(msgs, UserMessage(prompt))

	e.hooks.OnStageCall("stage3", chairman)
	text, err := e.chat.Chat(ctx, ChatRequest{
		Model:       chairman,
		Messages:    msgs,
		Temperature: stage3Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			e.diag.Record("stage3", chairman, err)
		}
		result := entity.Stage3Result{Model: chairman}
		if err != nil {
			result.Error = ClassifyError(err, chairman).Message
		} else {
			result.Error = "empty chairman response"
		}
		return result
	}

	eval := e.contracts.Evaluate(userPrompt, text, stack, "stage3")
	if eval.Status != contract.StatusFail {
		return entity.Stage3Result{Model: chairman, Response: text, ContractEval: eval}
	}

	// One repair pass: the chairman sees its own draft plus the violations
	// and must fix them without changing meaning. An empty repair keeps the
	// failed draft rather than losing the answer entirely.
	repaired := e.repairChairmanDraft(ctx, chairman, text, eval, msgs[:len(msgs)-1])
	if repaired == "" {
		return entity.Stage3Result{Model: chairman, Response: text, ContractEval: eval}
	}
	return entity.Stage3Result{
		Model:        chairman,
		Response:     repaired,
		ContractEval: e.contracts.Evaluate(userPrompt, repaired, stack, "stage3"),
		RepairUsed:   true,
	}
}

func (e *Engine) repairChairmanDraft(ctx context.Context, chairman, draft string, eval *contract.Evaluation, systemMsgs []ChatMessage) string {
	prompt := "Your draft below violates the council contract. Fix ONLY the violations, " +
		"preserving the meaning, structure, and recommendations.\n\n" +
		"VIOLATIONS (JSON):\n" + jsonBlock(eval) + "\n\n" +
		"DRAFT:\n" + draft

	msgs := append(append([]ChatMessage(nil), systemMsgs...), UserMessage(prompt))
	e.hooks.OnStageCall("stage3_repair", chairman)
	text, err := e.chat.Chat(ctx, ChatRequest{
		Model:       chairman,
		Messages:    msgs,
		Temperature: stage3Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		e.diag.Record("stage3", chairman, err)
		return ""
	}
	return strings.TrimSpace(text)
}

// buildChairmanPrompt serializes the full deliberation record. When the
// long-context helper is enabled and the assembled record is oversized, a
// briefing model pre-digests it and the chairman gets a shrunk prompt
// instead. The gate measures the assembled prompt, not the user prompt: a
// short question can still produce a huge record through stage-1 outputs.
func (e *Engine) buildChairmanPrompt(ctx context.Context, userPrompt string, stage1 []entity.Stage1Entry, stage2 []entity.Stage2Entry, labelToModel map[string]string, aggregates []entity.AggregateRanking) string {
	full := renderFullChairmanPrompt(userPrompt, stage1, stage2, labelToModel, aggregates)
	if !e.cfg.HelperEnabled || len(full) <= e.cfg.HelperTriggerChars {
		return full
	}

	briefing := e.runHelper(ctx, full)
	if briefing == "" {
		return full
	}
	return renderShrunkChairmanPrompt(userPrompt, briefing, stage1, labelToModel, aggregates)
}

func renderFullChairmanPrompt(userPrompt string, stage1 []entity.Stage1Entry, stage2 []entity.Stage2Entry, labelToModel map[string]string, aggregates []entity.AggregateRanking) string {
	var b strings.Builder
	b.WriteString("You will produce the best final answer to the user.\n\n")
	b.WriteString("Grounding data:\n")
	b.WriteString("- label_to_model: " + jsonBlock(labelToModel) + "\n")
	b.WriteString("- aggregate_rankings: " + jsonBlock(aggregates) + "\n\n")
	b.WriteString("You have:\n")
	b.WriteString("- Stage 1: initial answers from each model, with contract evaluations\n")
	b.WriteString("- Stage 2: peer rankings (partial or synthetic verdicts carry no weight)\n\n")
	b.WriteString("Write a single final response to the user.\n")
	b.WriteString("Do not mention internal stages unless explicitly asked.\n\n")
	b.WriteString("USER PROMPT:\n" + userPrompt + "\n\n")
	b.WriteString("STAGE 1 OUTPUTS:\n" + jsonBlock(stage1) + "\n\n")
	b.WriteString("STAGE 2 OUTPUTS:\n" + jsonBlock(stage2) + "\n")
	return b.String()
}

// renderShrunkChairmanPrompt keeps the top-2 ranked responses whole and
// truncates the rest, leaning on the helper briefing for everything else.
func renderShrunkChairmanPrompt(userPrompt, briefing string, stage1 []entity.Stage1Entry, labelToModel map[string]string, aggregates []entity.AggregateRanking) string {
	topModels := make(map[string]bool, 2)
	for _, agg := range aggregates {
		if agg.Disqualified {
			continue
		}
		topModels[agg.Model] = true
		if len(topModels) == 2 {
			break
		}
	}

	var b strings.Builder
	b.WriteString("You will produce the best final answer to the user.\n\n")
	b.WriteString("A briefing of the full deliberation record:\n" + briefing + "\n\n")
	b.WriteString("Aggregate rankings: " + jsonBlock(aggregates) + "\n\n")
	b.WriteString("USER PROMPT:\n" + userPrompt + "\n\n")
	b.WriteString("TOP RANKED RESPONSES (full):\n")
	for _, entry := range stage1 {
		if !topModels[entry.Model] {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", entry.Model, entry.Response)
	}
	b.WriteString("OTHER RESPONSES (truncated):\n")
	for _, entry := range stage1 {
		if topModels[entry.Model] {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", entry.Model, truncateRunes(entry.Response, truncatedResponseChars))
	}
	b.WriteString("Write a single final response to the user. Do not mention internal stages.")
	return b.String()
}

const helperSystemPrompt = "You compress deliberation records into briefings. Output 6-12 bullet " +
	"points covering only concrete details from the inputs: claims, rankings, disagreements, and " +
	"contract violations. No first-person voice, no recommendations of your own."

// runHelper asks the briefing model to pre-digest an oversized record.
// Failure degrades to the full prompt, never to an error.
func (e *Engine) runHelper(ctx context.Context, record string) string {
	e.hooks.OnStageCall("stage3_helper", e.cfg.HelperModel)
	text, err := e.chat.Chat(ctx, ChatRequest{
		Model:       e.cfg.HelperModel,
		Messages:    []ChatMessage{SystemMessage(helperSystemPrompt), UserMessage(record)},
		Temperature: helperTemperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		e.diag.Record("stage3", e.cfg.HelperModel, err)
		e.logger.Warn("Long-context helper failed, using full prompt", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func jsonBlock(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// truncateRunes caps s at n runes, never splitting a multi-byte rune.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
