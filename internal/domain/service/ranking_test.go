package service

import (
	"strings"
	"testing"
)

var testLabels = []string{"Response A", "Response B", "Response C", "Response D"}

func joinRanking(labels ...string) string {
	return strings.Join(labels, " > ")
}

// === ParseRanking ===

func TestParseRanking_CanonicalLine(t *testing.T) {
	text := "Response A: solid\nResponse B: weak\n" +
		"FINAL_RANKING: Response B > Response C > Response A > Response D"

	parsed := ParseRanking(text, testLabels)
	if parsed == nil {
		t.Fatal("expected a ranking")
	}
	want := joinRanking("Response B", "Response C", "Response A", "Response D")
	if joinRanking(parsed.Labels...) != want {
		t.Fatalf("got %v", parsed.Labels)
	}
	if parsed.Matched != 4 {
		t.Fatalf("matched = %d, want 4", parsed.Matched)
	}
}

func TestParseRanking_LastLineWins(t *testing.T) {
	text := "FINAL_RANKING: Response A > Response B > Response C > Response D\n" +
		"Wait, let me reconsider.\n" +
		"FINAL_RANKING: Response D > Response C > Response B > Response A"

	parsed := ParseRanking(text, testLabels)
	if parsed == nil || parsed.Labels[0] != "Response D" {
		t.Fatalf("last FINAL_RANKING must win, got %v", parsed)
	}
}

func TestParseRanking_SeparatorTolerance(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"arrows", "FINAL_RANKING: Response B → Response C ⇒ Response A -> Response D"},
		{"bare_letters", "FINAL_RANKING: B > C > A > D"},
		{"decorated", "FINAL_RANKING: **B** > (C) > `A` > D."},
		{"lowercase", "final_ranking: response b > response c > response a > response d"},
		{"spaced_keyword", "Final Ranking: B > C > A > D"},
		{"commas", "FINAL_RANKING: B, C, A, D"},
		{"fenced", "```\nFINAL_RANKING: B > C > A > D\n```"},
	}

	want := joinRanking("Response B", "Response C", "Response A", "Response D")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed := ParseRanking(tc.text, testLabels)
			if parsed == nil {
				t.Fatal("expected a ranking")
			}
			if joinRanking(parsed.Labels...) != want {
				t.Fatalf("got %v", parsed.Labels)
			}
		})
	}
}

func TestParseRanking_FuzzyChainWithoutKeyword(t *testing.T) {
	text := "After comparing everything I would order them Response C > Response A > Response B > Response D overall."

	parsed := ParseRanking(text, testLabels)
	if parsed == nil || parsed.Labels[0] != "Response C" {
		t.Fatalf("fuzzy chain recovery failed: %v", parsed)
	}
}

func TestParseRanking_BareLetterChain(t *testing.T) {
	text := "My verdict is C > B > A, D last."

	parsed := ParseRanking(text, testLabels)
	if parsed == nil {
		t.Fatal("expected a ranking")
	}
	if parsed.Labels[0] != "Response C" || parsed.Matched != 3 {
		t.Fatalf("got %v matched=%d", parsed.Labels, parsed.Matched)
	}
	// Missing D appended in label order.
	if parsed.Labels[3] != "Response D" {
		t.Fatalf("completion failed: %v", parsed.Labels)
	}
}

func TestParseRanking_DeduplicatesAndCompletes(t *testing.T) {
	text := "FINAL_RANKING: B > B > C"

	parsed := ParseRanking(text, testLabels)
	if parsed == nil {
		t.Fatal("expected a ranking")
	}
	want := joinRanking("Response B", "Response C", "Response A", "Response D")
	if joinRanking(parsed.Labels...) != want {
		t.Fatalf("got %v", parsed.Labels)
	}
	if parsed.Matched != 2 {
		t.Fatalf("matched = %d, want 2", parsed.Matched)
	}
}

func TestParseRanking_DropsUnknownLabels(t *testing.T) {
	text := "FINAL_RANKING: E > B > A"

	parsed := ParseRanking(text, testLabels)
	if parsed == nil {
		t.Fatal("expected a ranking")
	}
	if parsed.Labels[0] != "Response B" || parsed.Matched != 2 {
		t.Fatalf("got %v matched=%d", parsed.Labels, parsed.Matched)
	}
}

func TestParseRanking_NoSignal(t *testing.T) {
	for _, text := range []string{
		"",
		"I could not evaluate these responses.",
		"The answers were all interesting in different ways.",
	} {
		if parsed := ParseRanking(text, testLabels); parsed != nil {
			t.Fatalf("expected nil for %q, got %v", text, parsed)
		}
	}
}

// === CoerceCanonical ===

func TestCoerceCanonical_RoundTrip(t *testing.T) {
	canonical := "Response A: Strength: direct; Flaw: shallow.\n" +
		"Response B: Strength: deep; Flaw: verbose.\n" +
		"Response C: Strength: cited; Flaw: hedged.\n" +
		"Response D: Strength: novel; Flaw: risky.\n" +
		"FINAL_RANKING: Response B > Response A > Response C > Response D"

	out, coerced, ok := CoerceCanonical(canonical, testLabels)
	if !ok {
		t.Fatal("expected success")
	}
	if coerced {
		t.Fatal("canonical input must not be flagged coerced")
	}
	if out != canonical {
		t.Fatalf("round trip changed text:\n%s", out)
	}

	// Parser round trip: ranking survives coercion.
	parsed := ParseRanking(out, testLabels)
	if parsed == nil || parsed.Labels[0] != "Response B" {
		t.Fatalf("round-trip parse failed: %v", parsed)
	}
}

func TestCoerceCanonical_FillsPlaceholders(t *testing.T) {
	text := "FINAL_RANKING: Response B > Response C > Response A > Response D"

	out, coerced, ok := CoerceCanonical(text, testLabels)
	if !ok || !coerced {
		t.Fatalf("ok=%v coerced=%v", ok, coerced)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(lines))
	}
	for i := 0; i < 4; i++ {
		if !strings.Contains(lines[i], PlaceholderCritique) {
			t.Fatalf("line %d missing placeholder: %s", i, lines[i])
		}
	}
	if !strings.HasPrefix(lines[4], "FINAL_RANKING: Response B") {
		t.Fatalf("bad final line: %s", lines[4])
	}
}

func TestCoerceCanonical_MinesLooseCritiques(t *testing.T) {
	text := "- A: punchy opener but thin on evidence\n" +
		"B) thorough walk-through of the tradeoffs\n" +
		"Response C — solid but redundant\n" +
		"FINAL_RANKING: B > A > C > D"

	out, _, ok := CoerceCanonical(text, testLabels)
	if !ok {
		t.Fatal("expected success")
	}
	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[0], "punchy opener") {
		t.Fatalf("lost critique A: %s", lines[0])
	}
	if !strings.Contains(lines[1], "thorough walk-through") {
		t.Fatalf("lost critique B: %s", lines[1])
	}
	if !strings.Contains(lines[2], "solid but redundant") {
		t.Fatalf("lost critique C: %s", lines[2])
	}
	if !strings.Contains(lines[3], PlaceholderCritique) {
		t.Fatalf("missing critique D must get placeholder: %s", lines[3])
	}
}

func TestCoerceCanonical_NoRanking(t *testing.T) {
	if _, _, ok := CoerceCanonical("no ranking in here at all", testLabels); ok {
		t.Fatal("expected failure without a ranking")
	}
}
