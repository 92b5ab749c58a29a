package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
)

// Partial reasons, first matching rule wins.
const (
	PartialFinalRankingOnly = "final_ranking_only"
	PartialBadLineCount     = "bad_line_count"
	PartialMissingParts     = "missing_strength_flaw"
	PartialExampleOrder     = "example_order_and_placeholder"
	PartialPlaceholders     = "placeholder_critiques"
	PartialSparseRanking    = "sparse_ranking"
	PartialEvidenceGate     = "evidence_gate"
	PartialSyntheticFall    = "synthetic_fallback"
)

const judgeSystemPrompt = "You are a strict judge in a model evaluation panel. " +
	"Follow the output format exactly. Never narrate your process."

// Ladder temperatures. Repair attempts run cold so the model stops improvising.
const (
	tempJudgeNormal   = 0.1
	tempJudgeEvidence = 0.2
	tempJudgeRepair   = 0.0
)

var reProviderID = regexp.MustCompile(`^(gen-\d{6,}-[A-Za-z0-9_-]{8,}|(chatcmpl|cmpl|req|run|msg)-[A-Za-z0-9-]{12,}|[A-Za-z0-9_-]{24,})$`)

// Process-narration phrases that disqualify a judge attempt outright. A judge
// that talks about judging instead of judging never carries usable critique.
var narrationPhrases = []string{
	"i am currently",
	"i will now",
	"i just ",
	"hit a snag",
	"assessing the conundrum",
	"as an ai",
	"i cannot rank",
	"i am unable to rank",
	"let me start by",
	"processing your request",
	"working on it",
}

// judgeContext carries everything one judge call needs, so the adjudicator
// can rerun the ladder with a modified rubric.
type judgeContext struct {
	rubric    string
	labels    []string
	example   []string
	responses map[string]string // label -> stage-1 response text
}

// exampleRanking is the rubric's sample ordering. Deliberately not label
// order: judges anchor hard on whatever example they see, and an A>B>C>D
// example would masquerade as a real verdict.
func exampleRanking(labels []string) []string {
	if len(labels) != 4 {
		// Engine rejects non-4 label counts before this point.
		out := make([]string, len(labels))
		copy(out, labels)
		return out
	}
	return []string{labels[1], labels[2], labels[0], labels[3]}
}

// runStage2 fans the peer-ranking pass out across the judge set and returns
// entries in judge order plus the label bijection, appending an adjudicator
// verdict when the panel splits. The adjudicated flag reports whether it did.
func (e *Engine) runStage2(ctx context.Context, userPrompt string, stage1 []entity.Stage1Entry) ([]entity.Stage2Entry, map[string]string, bool, error) {
	if len(stage1) != len(e.cfg.Stage1Models) {
		return nil, nil, false, fmt.Errorf("stage 2 requires one entry per generator, got %d", len(stage1))
	}

	labels := make([]string, len(stage1))
	labelToModel := make(map[string]string, len(stage1))
	responses := make(map[string]string, len(stage1))
	for i, entry := range stage1 {
		label := entity.LabelForIndex(i)
		labels[i] = label
		labelToModel[label] = entry.Model
		responses[label] = entry.Response
	}
	if len(labels) != 4 {
		return nil, nil, false, fmt.Errorf("stage 2 supports exactly 4 labels, got %d", len(labels))
	}

	jc := &judgeContext{
		rubric:    buildRubric(userPrompt, labels, responses),
		labels:    labels,
		example:   exampleRanking(labels),
		responses: responses,
	}

	judges := dedupe(e.cfg.Stage2Models)
	entries := make([]entity.Stage2Entry, len(judges))

	var wg sync.WaitGroup
	for i, judge := range judges {
		wg.Add(1)
		go func(i int, judge string) {
			defer wg.Done()
			entries[i] = e.judgeOne(ctx, judge, jc)
		}(i, judge)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}

	entries, adjudicated := e.maybeAdjudicate(ctx, entries, judges, jc)
	if err := ctx.Err(); err != nil {
		return nil, nil, false, err
	}
	return entries, labelToModel, adjudicated, nil
}

func dedupe(models []string) []string {
	seen := make(map[string]bool, len(models))
	var out []string
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func buildRubric(userPrompt string, labels []string, responses map[string]string) string {
	var b strings.Builder
	b.WriteString("You are reviewing multiple anonymous answers from different models.\n\n")
	b.WriteString("USER PROMPT:\n")
	b.WriteString(userPrompt)
	b.WriteString("\n\nANONYMIZED RESPONSES:\n\n")
	for _, label := range labels {
		b.WriteString(label)
		b.WriteString(":\n")
		b.WriteString(responses[label])
		b.WriteString("\n\n")
	}
	b.WriteString("Rank the responses from best to worst on accuracy, insight, and usefulness.\n")
	b.WriteString("Reply with EXACTLY five lines and nothing else:\n")
	for _, label := range labels {
		b.WriteString(label)
		b.WriteString(": Strength: <concrete strength>; Flaw: <concrete flaw>\n")
	}
	b.WriteString("FINAL_RANKING: <best label> > <next> > <next> > <worst label>\n\n")
	b.WriteString("Example of the required final line format (do NOT copy this ordering):\n")
	b.WriteString("FINAL_RANKING: " + strings.Join(exampleRanking(labels), " > ") + "\n\n")
	b.WriteString("Each critique must reference concrete details from that response. ")
	b.WriteString("No preamble, no commentary, no markdown fences.")
	return b.String()
}

// attemptEval is the structural verdict over one ladder attempt.
type attemptEval struct {
	raw       string
	canonical string
	parsed    *ParsedRanking
	coerced   bool
	partial   bool
	reason    string
}

// judgeOne walks one judge through the repair ladder:
//
//	A0  rubric as-is
//	A0' evidence re-ask, only when A0 was structurally fine but low-signal
//	A1  strict-template wrapper
//	A2  self-repair of the judge's own previous output
//	A3  FINAL_RANKING line only, always partial
//
// The first acceptable non-partial attempt wins; otherwise the earliest
// acceptable partial attempt; otherwise a synthetic fallback entry.
func (e *Engine) judgeOne(ctx context.Context, judge string, jc *judgeContext) entity.Stage2Entry {
	var fallback *entity.Stage2Entry
	keepEarliest := func(entry entity.Stage2Entry) {
		if fallback == nil {
			fallback = &entry
		}
	}

	// A0
	raw0 := e.judgeCall(ctx, judge, jc.rubric, tempJudgeNormal)
	eval0 := e.evaluateAttempt(raw0, jc)
	if eval0 != nil {
		entry := buildJudgeEntry(judge, eval0, "")
		if !eval0.partial {
			return entry
		}
		keepEarliest(entry)

		// A0': a structurally sound but low-signal verdict gets one re-ask
		// demanding quoted detail before any format repair.
		if lowSignalReason(eval0.reason) && ctx.Err() == nil {
			e.hooks.OnLadderRepair("A0'")
			rawUp := e.judgeCall(ctx, judge, evidenceWrapper+jc.rubric, tempJudgeEvidence)
			if evalUp := e.evaluateAttempt(rawUp, jc); evalUp != nil {
				entry := buildJudgeEntry(judge, evalUp, "")
				if !evalUp.partial {
					return entry
				}
				keepEarliest(entry)
			}
		}
	}

	// A1: strict template wrapper around the original rubric.
	if ctx.Err() == nil {
		e.hooks.OnLadderRepair("A1")
		raw1 := e.judgeCall(ctx, judge, strictTemplateWrapper+jc.rubric, tempJudgeRepair)
		if eval1 := e.evaluateAttempt(raw1, jc); eval1 != nil {
			entry := buildJudgeEntry(judge, eval1, raw1)
			if !eval1.partial {
				return entry
			}
			keepEarliest(entry)
		}
	}

	// A2: ask the judge to rewrite its own previous output.
	previous := strings.TrimSpace(raw0)
	if previous != "" && ctx.Err() == nil {
		e.hooks.OnLadderRepair("A2")
		prompt := "Rewrite the following evaluation into EXACTLY five lines: four\n" +
			"'Response X: Strength: ...; Flaw: ...' lines (X in " + strings.Join(letterList(jc.labels), ", ") + ", in that order)\n" +
			"followed by one 'FINAL_RANKING: ...' line. Preserve the judgments; do not add commentary.\n\n" +
			"EVALUATION TO REWRITE:\n" + previous
		raw2 := e.judgeCall(ctx, judge, prompt, tempJudgeRepair)
		if eval2 := e.evaluateAttempt(raw2, jc); eval2 != nil {
			entry := buildJudgeEntry(judge, eval2, raw2)
			if !eval2.partial {
				return entry
			}
			keepEarliest(entry)
		}
	}

	if fallback != nil {
		return *fallback
	}

	// A3: last resort, one line only. Always partial.
	if ctx.Err() == nil {
		e.hooks.OnLadderRepair("A3")
		prompt := "Reply with ONE line only, ranking the responses best to worst:\n" +
			"FINAL_RANKING: " + strings.Join(jc.labels, " > ") + "\n" +
			"(reorder the labels to reflect your judgment; output nothing else)\n\n" + jc.rubric
		raw3 := e.judgeCall(ctx, judge, prompt, tempJudgeRepair)
		if accepted := e.evaluateAttempt(raw3, jc); accepted != nil {
			accepted.partial = true
			accepted.reason = PartialFinalRankingOnly
			return buildJudgeEntry(judge, accepted, raw3)
		}
	}

	// Synthetic fallback: default ranking in label order, placeholders only.
	e.hooks.OnSynthetic("stage2")
	canonical, _, _ := CoerceCanonical("FINAL_RANKING: "+strings.Join(jc.labels, " > "), jc.labels)
	return entity.Stage2Entry{
		Model:         judge,
		Ranking:       canonical,
		ParsedRanking: append([]string(nil), jc.labels...),
		Coerced:       true,
		Partial:       true,
		PartialReason: PartialSyntheticFall,
		Synthetic:     true,
	}
}

// judgeCall performs one judge chat call. Judges get the minimal strict-judge
// persona only: contracts and roles would color the verdict.
func (e *Engine) judgeCall(ctx context.Context, judge, prompt string, temp float64) string {
	e.hooks.OnStageCall("stage2", judge)
	text, err := e.chat.Chat(ctx, ChatRequest{
		Model:       judge,
		Messages:    []ChatMessage{SystemMessage(judgeSystemPrompt), UserMessage(prompt)},
		Temperature: temp,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		e.diag.Record("stage2", judge, err)
		e.logger.Debug("Judge call failed", zap.String("model", judge), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

const evidenceWrapper = "Your previous evaluation lacked concrete evidence. Redo it. Every critique " +
	"line must quote or cite a specific detail (a phrase, number, or step) from that response. " +
	"Generic praise or placeholder text is not acceptable.\n\n"

const strictTemplateWrapper = "OUTPUT FORMAT IS MANDATORY. Five lines, nothing before or after. " +
	"Do not copy the example ordering; rank on merit.\n\n"

// evaluateAttempt applies the acceptability rules to one attempt. Returns nil
// when the attempt is unusable; otherwise the structural evaluation with
// partial classification applied.
func (e *Engine) evaluateAttempt(raw string, jc *judgeContext) *attemptEval {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || isProviderArtifact(trimmed) || looksLikeNarration(trimmed) {
		return nil
	}

	parsed := ParseRanking(trimmed, jc.labels)
	if parsed == nil {
		return nil
	}
	canonical, coerced, ok := CoerceCanonical(trimmed, jc.labels)
	if !ok {
		return nil
	}
	if coerced {
		e.hooks.OnCoercion()
	}

	eval := &attemptEval{raw: trimmed, canonical: canonical, parsed: parsed, coerced: coerced}
	eval.partial, eval.reason = e.classifyPartial(canonical, parsed, jc)
	return eval
}

func isProviderArtifact(s string) bool {
	return !strings.ContainsAny(s, " \t\r\n") && reProviderID.MatchString(s)
}

func looksLikeNarration(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range narrationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// classifyPartial applies the quality gate to a canonical verdict. The first
// matching rule names the reason.
func (e *Engine) classifyPartial(canonical string, parsed *ParsedRanking, jc *judgeContext) (bool, string) {
	lines := strings.Split(canonical, "\n")
	if len(lines) != len(jc.labels)+1 {
		return true, PartialBadLineCount
	}
	critiques := lines[:len(jc.labels)]

	placeholders := 0
	for _, line := range critiques {
		if strings.Contains(line, PlaceholderCritique) {
			placeholders++
		}
	}

	for _, line := range critiques {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "strength:") || !strings.Contains(lower, "flaw:") {
			return true, PartialMissingParts
		}
	}

	if placeholders > 0 && sameOrder(parsed.Labels, jc.example) {
		return true, PartialExampleOrder
	}
	if placeholders >= 2 {
		return true, PartialPlaceholders
	}
	if parsed.Matched <= 1 {
		return true, PartialSparseRanking
	}
	if !e.evidenceGateOK(critiques, jc) {
		return true, PartialEvidenceGate
	}
	return false, ""
}

// Generic critique vocabulary that proves nothing about the response itself.
var evidenceStopwords = map[string]bool{
	"strength": true, "flaw": true, "response": true, "answer": true,
	"about": true, "their": true, "there": true, "these": true, "those": true,
	"would": true, "could": true, "should": true, "which": true, "while": true,
	"where": true, "because": true, "other": true, "overall": true,
	"detail": true, "details": true, "missing": true, "lacks": true,
	"insufficient": true, "signal": true, "concrete": true, "specific": true,
}

var reEvidenceToken = regexp.MustCompile(`[a-z0-9]{5,}`)

// evidenceGateOK requires most critique lines to share at least one concrete
// token with the response they critique. Short responses are exempt: there is
// nothing to quote from "42".
func (e *Engine) evidenceGateOK(critiques []string, jc *judgeContext) bool {
	minLines := e.cfg.EvidenceMinLines
	if minLines <= 0 {
		return true
	}

	okLines := 0
	for i, line := range critiques {
		resp := jc.responses[jc.labels[i]]
		if len(resp) < 20 {
			okLines++
			continue
		}
		lowerResp := strings.ToLower(resp)
		matched := false
		for _, tok := range reEvidenceToken.FindAllString(strings.ToLower(line), -1) {
			if evidenceStopwords[tok] {
				continue
			}
			if strings.Contains(lowerResp, tok) {
				matched = true
				break
			}
		}
		if matched {
			okLines++
		}
	}
	return okLines >= minLines
}

// lowSignalReason reports whether a partial reason indicates thin critique
// content rather than broken structure, which the A0' re-ask can fix.
func lowSignalReason(reason string) bool {
	switch reason {
	case PartialPlaceholders, PartialEvidenceGate, PartialExampleOrder:
		return true
	}
	return false
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func letterList(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = letterOf(l)
	}
	return out
}

// buildJudgeEntry assembles the Stage2Entry bookkeeping for a kept attempt.
// repairRaw is non-empty when the attempt came from a format-fix rung.
func buildJudgeEntry(judge string, eval *attemptEval, repairRaw string) entity.Stage2Entry {
	entry := entity.Stage2Entry{
		Model:         judge,
		Ranking:       eval.canonical,
		ParsedRanking: eval.parsed.Labels,
		Coerced:       eval.coerced,
		Partial:       eval.partial,
		PartialReason: eval.reason,
	}
	if eval.raw != eval.canonical {
		entry.RawRanking = eval.raw
	}
	if repairRaw != "" {
		entry.FormatFixUsed = true
		entry.FormatFixOutput = repairRaw
	}
	return entry
}
