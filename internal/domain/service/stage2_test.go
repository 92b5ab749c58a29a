package service

import (
	"context"
	"strings"
	"testing"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
)

func runStage1ForTest(t *testing.T, e *Engine, client *scriptedClient) []entity.Stage1Entry {
	t.Helper()
	scriptGenerators(client)
	entries, err := e.runStage1(context.Background(), "explain energy systems", testStack)
	if err != nil {
		t.Fatalf("runStage1: %v", err)
	}
	return entries
}

// === happy path ===

func TestStage2FullVerdicts(t *testing.T) {
	client := newScriptedClient()
	hook := newCountingHook()
	e := newTestEngine(client, testConfig(), hook)
	stage1 := runStage1ForTest(t, e, client)

	scriptJudges(client, goodVerdict("A > C > B > D"))

	entries, labelToModel, adjudicated, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if adjudicated {
		t.Error("unanimous panel must not adjudicate")
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Partial {
			t.Errorf("judge %d: unexpected partial (%s)", i, entry.PartialReason)
		}
		if entry.Coerced {
			t.Errorf("judge %d: canonical verdict should not be coerced", i)
		}
		want := []string{"Response A", "Response C", "Response B", "Response D"}
		for j, label := range want {
			if entry.ParsedRanking[j] != label {
				t.Errorf("judge %d: parsed[%d] = %s, want %s", i, j, entry.ParsedRanking[j], label)
			}
		}
	}
	if labelToModel["Response A"] != "openai/gen-a" {
		t.Errorf("label bijection broken: %v", labelToModel)
	}
}

func TestStage2JudgeSetDeduped(t *testing.T) {
	cfg := testConfig()
	cfg.Stage2Models = append(append([]string{}, testGenerators...), testGenerators[0])

	client := newScriptedClient()
	e := newTestEngine(client, cfg, nil)
	stage1 := runStage1ForTest(t, e, client)
	scriptJudges(client, goodVerdict("A > B > C > D"))

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("duplicate judge not removed: %d entries", len(entries))
	}
}

// === repair ladder ===

func TestStage2LadderRecoversFromNarration(t *testing.T) {
	client := newScriptedClient()
	hook := newCountingHook()
	e := newTestEngine(client, testConfig(), hook)
	stage1 := runStage1ForTest(t, e, client)

	for _, model := range testGenerators {
		if model == "x-ai/gen-d" {
			client.script(model,
				scriptStep{text: "I am currently assessing the conundrum you have presented."},
				scriptStep{text: goodVerdict("D > A > B > C")},
			)
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[3]
	if entry.Partial {
		t.Fatalf("ladder should have recovered, got partial (%s)", entry.PartialReason)
	}
	if !entry.FormatFixUsed {
		t.Error("expected format_fix_used after A1 recovery")
	}
	if entry.ParsedRanking[0] != "Response D" {
		t.Errorf("recovered ranking lost: %v", entry.ParsedRanking)
	}
	if len(hook.repairs) == 0 {
		t.Error("expected ladder repair signals")
	}
}

func TestStage2FinalRankingOnlyFromLastRung(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	for _, model := range testGenerators {
		if model == "anthropic/gen-b" {
			// A0 and A1 unusable, A2 skipped (empty previous), A3 answers.
			client.script(model,
				scriptStep{text: ""},
				scriptStep{text: ""},
				scriptStep{text: "FINAL_RANKING: Response B > Response A > Response C > Response D"},
			)
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[1]
	if !entry.Partial || entry.PartialReason != PartialFinalRankingOnly {
		t.Fatalf("expected final_ranking_only, got partial=%v reason=%q", entry.Partial, entry.PartialReason)
	}
	if entry.ParsedRanking[0] != "Response B" {
		t.Errorf("A3 ranking lost: %v", entry.ParsedRanking)
	}
	if !entry.FormatFixUsed {
		t.Error("A3 output must be recorded as a format fix")
	}
}

func TestStage2SyntheticFallback(t *testing.T) {
	client := newScriptedClient()
	hook := newCountingHook()
	e := newTestEngine(client, testConfig(), hook)
	stage1 := runStage1ForTest(t, e, client)

	for _, model := range testGenerators {
		if model == "google/gen-c" {
			client.reply(model, "As an AI, I cannot rank these responses.")
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[2]
	if !entry.Synthetic {
		t.Fatal("expected synthetic fallback entry")
	}
	if entry.PartialReason != PartialSyntheticFall {
		t.Errorf("expected synthetic_fallback reason, got %q", entry.PartialReason)
	}
	want := []string{"Response A", "Response B", "Response C", "Response D"}
	for i, label := range want {
		if entry.ParsedRanking[i] != label {
			t.Errorf("fallback ranking must be label order, got %v", entry.ParsedRanking)
			break
		}
	}
	if hook.synthetic["stage2"] != 1 {
		t.Errorf("expected 1 synthetic signal, got %d", hook.synthetic["stage2"])
	}
}

// === partial classification ===

func TestStage2PartialPlaceholders(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	for _, model := range testGenerators {
		if model == "openai/gen-a" {
			// Bare ranking, not the example rotation: all four critiques
			// become placeholders.
			client.reply(model, "FINAL_RANKING: Response A > Response C > Response B > Response D")
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[0]
	if !entry.Partial || entry.PartialReason != PartialPlaceholders {
		t.Fatalf("expected placeholder_critiques, got partial=%v reason=%q", entry.Partial, entry.PartialReason)
	}
	if !entry.Coerced {
		t.Error("bare ranking must be marked coerced")
	}
}

func TestStage2PartialExampleOrder(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	for _, model := range testGenerators {
		if model == "openai/gen-a" {
			// Example rotation (B > C > A > D) plus placeholders: the
			// example-order rule outranks the plain placeholder rule.
			client.reply(model, "FINAL_RANKING: Response B > Response C > Response A > Response D")
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[0]
	if !entry.Partial || entry.PartialReason != PartialExampleOrder {
		t.Fatalf("expected example_order_and_placeholder, got partial=%v reason=%q", entry.Partial, entry.PartialReason)
	}
}

func TestStage2PartialMissingStrengthFlaw(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	loose := "Response A: strong mitochondria coverage overall.\n" +
		"Response B: photosynthesis well explained here.\n" +
		"Response C: thermodynamics cited correctly today.\n" +
		"Response D: electromagnetism grounded in Maxwell work.\n" +
		"FINAL_RANKING: Response A > Response B > Response C > Response D"
	for _, model := range testGenerators {
		if model == "openai/gen-a" {
			client.reply(model, loose)
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[0]
	if !entry.Partial || entry.PartialReason != PartialMissingParts {
		t.Fatalf("expected missing_strength_flaw, got partial=%v reason=%q", entry.Partial, entry.PartialReason)
	}
}

func TestStage2EvidenceGate(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	generic := "Response A: Strength: nice; Flaw: long.\n" +
		"Response B: Strength: fine; Flaw: slow.\n" +
		"Response C: Strength: neat; Flaw: curt.\n" +
		"Response D: Strength: okay; Flaw: thin.\n" +
		"FINAL_RANKING: Response A > Response B > Response C > Response D"
	for _, model := range testGenerators {
		if model == "openai/gen-a" {
			client.reply(model, generic)
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[0]
	if !entry.Partial || entry.PartialReason != PartialEvidenceGate {
		t.Fatalf("expected evidence_gate, got partial=%v reason=%q", entry.Partial, entry.PartialReason)
	}
}

func TestStage2EvidenceGateDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EvidenceMinLines = 0

	client := newScriptedClient()
	e := newTestEngine(client, cfg, nil)
	stage1 := runStage1ForTest(t, e, client)

	generic := "Response A: Strength: nice; Flaw: long.\n" +
		"Response B: Strength: fine; Flaw: slow.\n" +
		"Response C: Strength: neat; Flaw: curt.\n" +
		"Response D: Strength: okay; Flaw: thin.\n" +
		"FINAL_RANKING: Response A > Response B > Response C > Response D"
	scriptJudges(client, generic)

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	for i, entry := range entries {
		if entry.Partial {
			t.Errorf("judge %d: gate disabled but partial (%s)", i, entry.PartialReason)
		}
	}
}

// === artifact and narration filters ===

func TestStage2ProviderArtifactRejected(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	for _, model := range testGenerators {
		if model == "openai/gen-a" {
			client.script(model,
				scriptStep{text: "gen-1724012345-Zx9YachQ8Kp2"},
				scriptStep{text: goodVerdict("A > B > C > D")},
			)
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if entries[0].Partial {
		t.Fatalf("artifact should have fed the ladder, got partial (%s)", entries[0].PartialReason)
	}
	if !entries[0].FormatFixUsed {
		t.Error("recovery after artifact must record the format fix")
	}
}

func TestStage2RawRankingPreserved(t *testing.T) {
	client := newScriptedClient()
	e := newTestEngine(client, testConfig(), nil)
	stage1 := runStage1ForTest(t, e, client)

	fenced := "```\n" + goodVerdict("C > A > B > D") + "\n```"
	for _, model := range testGenerators {
		if model == "openai/gen-a" {
			client.reply(model, fenced)
			continue
		}
		client.reply(model, goodVerdict("A > B > C > D"))
	}

	entries, _, _, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	entry := entries[0]
	if entry.RawRanking == "" {
		t.Fatal("pre-coercion text must be preserved when it differs")
	}
	if !strings.Contains(entry.RawRanking, "```") {
		t.Errorf("raw ranking should keep the fences: %q", entry.RawRanking)
	}
	if strings.Contains(entry.Ranking, "```") {
		t.Errorf("canonical ranking should strip fences: %q", entry.Ranking)
	}
}
