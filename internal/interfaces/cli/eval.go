package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
)

// EvalRunner runs one deliberation; *service.Engine satisfies it.
type EvalRunner interface {
	RunCouncil(ctx context.Context, prompt string, opts service.Options) (*entity.CouncilResult, error)
}

// evalPrompt is one line of the eval input file. Plain-text lines are
// accepted too and treated as the prompt.
type evalPrompt struct {
	Prompt    string `json:"prompt"`
	Contracts string `json:"contracts,omitempty"`
}

// EvalStats accumulates stage-2 quality measures across eval runs.
type EvalStats struct {
	Runs       int
	FailedRuns int

	Verdicts     int
	FullVerdicts int
	Coerced      int
	Synthetic    int
	Adjudicated  int

	PartialByReason map[string]int
	Top1Votes       map[string]int
}

// NewEvalStats creates an empty accumulator.
func NewEvalStats() *EvalStats {
	return &EvalStats{
		PartialByReason: make(map[string]int),
		Top1Votes:       make(map[string]int),
	}
}

// Observe folds one council result into the accumulator.
func (s *EvalStats) Observe(res *entity.CouncilResult) {
	s.Runs++
	for _, entry := range res.Stage2 {
		if entry.Adjudicator {
			s.Adjudicated++
		}
		s.Verdicts++
		if entry.Synthetic {
			s.Synthetic++
			continue
		}
		if entry.Partial {
			s.PartialByReason[entry.PartialReason]++
			continue
		}
		s.FullVerdicts++
		if entry.Coerced {
			s.Coerced++
		}
		if len(entry.ParsedRanking) > 0 {
			top := entry.ParsedRanking[0]
			if m, ok := res.Meta.LabelToModel[top]; ok {
				top = m
			}
			s.Top1Votes[top]++
		}
	}
}

// ComplianceRate is the share of verdicts that arrived in (or were coerced
// into) the canonical five-line form without going partial.
func (s *EvalStats) ComplianceRate() float64 {
	if s.Verdicts == 0 {
		return 0
	}
	return float64(s.FullVerdicts) / float64(s.Verdicts)
}

// PlaceholderRatio is the share of verdicts rejected for placeholder critiques.
func (s *EvalStats) PlaceholderRatio() float64 {
	if s.Verdicts == 0 {
		return 0
	}
	return float64(s.PartialByReason["placeholder_critiques"]) / float64(s.Verdicts)
}

// CoercionRate is the share of full verdicts that needed canonical rebuilding.
func (s *EvalStats) CoercionRate() float64 {
	if s.FullVerdicts == 0 {
		return 0
	}
	return float64(s.Coerced) / float64(s.FullVerdicts)
}

// Render writes the text report.
func (s *EvalStats) Render(w io.Writer) {
	fmt.Fprintf(w, "Eval: %d runs (%d failed), %d verdicts\n\n", s.Runs, s.FailedRuns, s.Verdicts)
	fmt.Fprintf(w, "  five-line compliance  %6.1f%%\n", s.ComplianceRate()*100)
	fmt.Fprintf(w, "  coercion rate         %6.1f%%\n", s.CoercionRate()*100)
	fmt.Fprintf(w, "  placeholder ratio     %6.1f%%\n", s.PlaceholderRatio()*100)
	fmt.Fprintf(w, "  synthetic fallbacks   %6d\n", s.Synthetic)
	fmt.Fprintf(w, "  adjudications         %6d\n", s.Adjudicated)
	fmt.Fprintf(w, "  evidence-gate fails   %6d\n", s.PartialByReason["evidence_gate"])

	if len(s.PartialByReason) > 0 {
		fmt.Fprintf(w, "\nPartial verdicts by reason:\n")
		for _, reason := range sortedKeys(s.PartialByReason) {
			fmt.Fprintf(w, "  %-28s %4d\n", reason, s.PartialByReason[reason])
		}
	}

	if len(s.Top1Votes) > 0 {
		fmt.Fprintf(w, "\nTop-1 consensus distribution:\n")
		for _, model := range sortedByVotes(s.Top1Votes) {
			fmt.Fprintf(w, "  %-40s %4d\n", model, s.Top1Votes[model])
		}
	}
}

// RunEval runs the council over every prompt in r and reports aggregate
// stage-2 quality to w. Failed runs count but do not abort the harness.
func RunEval(ctx context.Context, runner EvalRunner, r io.Reader, w io.Writer, contracts string) (*EvalStats, error) {
	stats := NewEvalStats()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var p evalPrompt
		if err := json.Unmarshal([]byte(text), &p); err != nil || p.Prompt == "" {
			p = evalPrompt{Prompt: text}
		}
		if p.Contracts == "" {
			p.Contracts = contracts
		}

		res, err := runner.RunCouncil(ctx, p.Prompt, service.Options{ContractsCSV: p.Contracts})
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Runs++
			stats.FailedRuns++
			fmt.Fprintf(w, "  line %d failed: %v\n", line, err)
			continue
		}
		stats.Observe(res)
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read prompts: %w", err)
	}

	stats.Render(w)
	return stats, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedByVotes orders models by vote count descending, name ascending.
func sortedByVotes(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
