package service

import (
	"context"
	"errors"
	"testing"
)

var testStack = []string{"factory_truth_v1"}

// === fan-out ===

func TestStage1OrderMatchesConfiguredModels(t *testing.T) {
	client := newScriptedClient()
	scriptGenerators(client)
	e := newTestEngine(client, testConfig(), nil)

	entries, err := e.runStage1(context.Background(), "explain energy", testStack)
	if err != nil {
		t.Fatalf("runStage1: %v", err)
	}
	if len(entries) != len(testGenerators) {
		t.Fatalf("expected %d entries, got %d", len(testGenerators), len(entries))
	}
	for i, model := range testGenerators {
		if entries[i].Model != model {
			t.Errorf("slot %d: expected %s, got %s", i, model, entries[i].Model)
		}
		if entries[i].Response != testAnswers[model] {
			t.Errorf("slot %d: wrong response text", i)
		}
		if entries[i].Synthetic {
			t.Errorf("slot %d: unexpected synthetic entry", i)
		}
		if entries[i].ContractEval == nil {
			t.Errorf("slot %d: missing contract eval", i)
		}
	}
}

func TestStage1MessagesCarryContractAndRole(t *testing.T) {
	client := newScriptedClient()
	scriptGenerators(client)
	e := newTestEngine(client, testConfig(), nil)

	if _, err := e.runStage1(context.Background(), "the prompt", testStack); err != nil {
		t.Fatalf("runStage1: %v", err)
	}

	calls := client.callsFor("openai/gen-a")
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	msgs := calls[0].Messages
	// contract system message, role system message, user message
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "system" || msgs[2].Role != "user" {
		t.Fatalf("unexpected roles: %s %s %s", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
	if msgs[2].Content != "the prompt" {
		t.Errorf("user message lost: %q", msgs[2].Content)
	}
	if calls[0].Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %v", calls[0].Temperature)
	}
}

// === degraded paths ===

func TestStage1SyntheticOnFailure(t *testing.T) {
	client := newScriptedClient()
	for _, model := range testGenerators {
		if model == "anthropic/gen-b" {
			client.fail(model, errors.New("HTTP 503: upstream overloaded"))
			continue
		}
		client.reply(model, testAnswers[model])
	}
	hook := newCountingHook()
	e := newTestEngine(client, testConfig(), hook)

	entries, err := e.runStage1(context.Background(), "explain energy", testStack)
	if err != nil {
		t.Fatalf("runStage1: %v", err)
	}

	entry := entries[1]
	if !entry.Synthetic {
		t.Fatal("expected synthetic entry for failed model")
	}
	if entry.Response != SyntheticResponse {
		t.Errorf("wrong placeholder: %q", entry.Response)
	}
	if entry.SyntheticReason != "transient" {
		t.Errorf("expected transient reason, got %q", entry.SyntheticReason)
	}
	if entry.ContractEval != nil {
		t.Error("synthetic entry must not carry a contract eval")
	}
	if hook.synthetic["stage1"] != 1 {
		t.Errorf("expected 1 synthetic signal, got %d", hook.synthetic["stage1"])
	}
}

func TestStage1GoogleRetry(t *testing.T) {
	client := newScriptedClient()
	for _, model := range testGenerators {
		if model == "google/gen-c" {
			client.script(model,
				scriptStep{text: ""},
				scriptStep{text: testAnswers[model]},
			)
			continue
		}
		client.reply(model, testAnswers[model])
	}
	e := newTestEngine(client, testConfig(), nil)

	entries, err := e.runStage1(context.Background(), "explain energy", testStack)
	if err != nil {
		t.Fatalf("runStage1: %v", err)
	}
	if entries[2].Synthetic {
		t.Fatal("google model should have recovered on retry")
	}
	if got := len(client.callsFor("google/gen-c")); got != 2 {
		t.Errorf("expected 2 google calls, got %d", got)
	}
	// Non-google models never retry.
	if got := len(client.callsFor("openai/gen-a")); got != 1 {
		t.Errorf("expected 1 openai call, got %d", got)
	}
}

func TestStage1AllFailed(t *testing.T) {
	client := newScriptedClient()
	for _, model := range testGenerators {
		client.fail(model, errors.New("HTTP 502: bad gateway"))
	}
	e := newTestEngine(client, testConfig(), nil)

	_, err := e.runStage1(context.Background(), "explain energy", testStack)
	if !errors.Is(err, ErrStage1AllFailed) {
		t.Fatalf("expected ErrStage1AllFailed, got %v", err)
	}
	if len(e.diag.Recent()) == 0 {
		t.Error("expected diagnostics entries for failed generators")
	}
}

func TestStage1EmptyResponsesWithoutErrorsKeepSynthetics(t *testing.T) {
	// All-empty but error-free runs keep the synthetic entries instead of
	// aborting: nothing errored, so there is nothing to report.
	client := newScriptedClient()
	for _, model := range testGenerators {
		client.script(model, scriptStep{text: ""}, scriptStep{text: ""})
	}
	e := newTestEngine(client, testConfig(), nil)

	entries, err := e.runStage1(context.Background(), "explain energy", testStack)
	if err != nil {
		t.Fatalf("runStage1: %v", err)
	}
	for i, entry := range entries {
		if !entry.Synthetic {
			t.Errorf("slot %d: expected synthetic entry", i)
		}
	}
}

func TestStage1Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := chatFunc(func(ctx context.Context, req ChatRequest) (string, error) {
		return "", ctx.Err()
	})
	e := newTestEngine(client, testConfig(), nil)

	if _, err := e.runStage1(ctx, "explain energy", testStack); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
