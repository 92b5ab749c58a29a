package service

import (
	"context"
	"strings"
	"testing"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
)

// === tally ===

func TestTallyTop1SkipsSyntheticAndPartial(t *testing.T) {
	entries := []entity.Stage2Entry{
		{ParsedRanking: []string{"Response A", "Response B"}},
		{ParsedRanking: []string{"Response B", "Response A"}},
		{ParsedRanking: []string{"Response A", "Response B"}, Partial: true},
		{ParsedRanking: []string{"Response A", "Response B"}, Synthetic: true},
		{},
	}
	tally := tallyTop1(entries)
	if tally.total != 2 {
		t.Fatalf("expected 2 qualifying votes, got %d", tally.total)
	}
	if tally.distinct != 2 {
		t.Errorf("expected 2 distinct labels, got %d", tally.distinct)
	}
	if tally.votes["Response A"] != 1 || tally.votes["Response B"] != 1 {
		t.Errorf("unexpected vote map: %v", tally.votes)
	}
}

func TestVoteSummaryOrdering(t *testing.T) {
	tally := voteTally{votes: map[string]int{
		"Response A": 1,
		"Response B": 2,
		"Response C": 1,
	}}
	// Counts descending, then label ascending.
	if got := tally.summary(); got != "B:2, A:1, C:1" {
		t.Fatalf("summary = %q", got)
	}
}

// === adjudication through the stage-2 pipeline ===

func splitPanel(client *scriptedClient) {
	client.reply("openai/gen-a", goodVerdict("A > B > C > D"))
	client.reply("anthropic/gen-b", goodVerdict("A > C > B > D"))
	client.reply("google/gen-c", goodVerdict("B > A > C > D"))
	client.reply("x-ai/gen-d", goodVerdict("C > A > B > D"))
}

func TestAdjudicationOnSplitPanel(t *testing.T) {
	client := newScriptedClient()
	hook := newCountingHook()
	e := newTestEngine(client, testConfig(), hook)
	stage1 := runStage1ForTest(t, e, client)

	splitPanel(client)
	client.reply("deepseek/adjudicator", goodVerdict("A > B > C > D"))

	entries, _, adjudicated, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if !adjudicated {
		t.Fatal("split panel (A:2, B:1, C:1) must adjudicate")
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries with adjudicator, got %d", len(entries))
	}
	last := entries[4]
	if !last.Adjudicator {
		t.Error("appended entry must be flagged adjudicator")
	}
	if last.Model != "deepseek/adjudicator" {
		t.Errorf("adjudicator model = %q", last.Model)
	}
	if hook.adjudication != 1 {
		t.Errorf("expected 1 adjudication signal, got %d", hook.adjudication)
	}

	calls := client.callsFor("deepseek/adjudicator")
	if len(calls) == 0 {
		t.Fatal("adjudicator never called")
	}
	prompt := calls[0].Messages[len(calls[0].Messages)-1].Content
	if !strings.Contains(prompt, "top-1 votes: A:2, B:1, C:1") {
		t.Errorf("disagreement summary missing from adjudicator prompt")
	}
}

func TestAdjudicationSkippedWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.AdjudicateEnabled = false

	client := newScriptedClient()
	e := newTestEngine(client, cfg, nil)
	stage1 := runStage1ForTest(t, e, client)
	splitPanel(client)

	entries, _, adjudicated, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if adjudicated || len(entries) != 4 {
		t.Fatalf("disabled gate must not adjudicate (adjudicated=%v, entries=%d)", adjudicated, len(entries))
	}
}

func TestAdjudicationSkippedBelowMinNonPartial(t *testing.T) {
	cfg := testConfig()
	cfg.MinNonPartial = 5

	client := newScriptedClient()
	e := newTestEngine(client, cfg, nil)
	stage1 := runStage1ForTest(t, e, client)
	splitPanel(client)

	_, _, adjudicated, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if adjudicated {
		t.Fatal("panel below min_nonpartial must not adjudicate")
	}
}

func TestAdjudicationVoteOverride(t *testing.T) {
	cfg := testConfig()
	cfg.MinTop1Votes = 2 // leader has exactly 2 votes, so consensus holds

	client := newScriptedClient()
	e := newTestEngine(client, cfg, nil)
	stage1 := runStage1ForTest(t, e, client)
	splitPanel(client)

	_, _, adjudicated, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if adjudicated {
		t.Fatal("override threshold met, must not adjudicate")
	}
}

func TestAdjudicatorCollisionSuffix(t *testing.T) {
	cfg := testConfig()
	cfg.AdjudicatorModel = "openai/gen-a"
	cfg.AdjudicatorFallbacks = []string{"anthropic/gen-b"}

	client := newScriptedClient()
	e := newTestEngine(client, cfg, nil)
	stage1 := runStage1ForTest(t, e, client)
	splitPanel(client)

	entries, _, adjudicated, err := e.runStage2(context.Background(), "explain energy systems", stage1)
	if err != nil {
		t.Fatalf("runStage2: %v", err)
	}
	if !adjudicated {
		t.Fatal("expected adjudication")
	}
	last := entries[len(entries)-1]
	if last.Model != "openai/gen-a (adjudicator)" {
		t.Errorf("expected suffixed model name, got %q", last.Model)
	}
}

func TestPickAdjudicator(t *testing.T) {
	cfg := testConfig()
	e := newTestEngine(newScriptedClient(), cfg, nil)

	model, collided := e.pickAdjudicator(testGenerators)
	if model != "deepseek/adjudicator" || collided {
		t.Fatalf("clean pick failed: %s collided=%v", model, collided)
	}

	model, collided = e.pickAdjudicator(append(testGenerators, "deepseek/adjudicator"))
	if model != "qwen/fallback" || collided {
		t.Fatalf("fallback pick failed: %s collided=%v", model, collided)
	}

	model, collided = e.pickAdjudicator(append(testGenerators, "deepseek/adjudicator", "qwen/fallback"))
	if model != "deepseek/adjudicator" || !collided {
		t.Fatalf("collision pick failed: %s collided=%v", model, collided)
	}
}
