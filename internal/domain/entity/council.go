package entity

import (
	"fmt"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/contract"
)

// Rank sentinels used by the aggregate table. Real average ranks are small;
// sentinels sort every non-voted model to the bottom while keeping
// disqualified models distinguishable from merely unranked ones.
const (
	DisqualifiedRank = 9998
	UnrankedRank     = 9999
)

// LabelForIndex returns the anonymized label for a stage-1 slot:
// 0 → "Response A", 1 → "Response B", …
// Slot order is the configured model order, so labels are stable per run.
func LabelForIndex(i int) string {
	return fmt.Sprintf("Response %c", rune('A'+i))
}

// Stage1Entry is one generator's answer.
type Stage1Entry struct {
	Model           string               `json:"model"`
	Response        string               `json:"response"`
	Synthetic       bool                 `json:"synthetic,omitempty"`
	SyntheticReason string               `json:"synthetic_reason,omitempty"`
	ContractEval    *contract.Evaluation `json:"contract_eval,omitempty"`
}

// Stage2Entry is one judge's verdict over the labeled stage-1 answers.
type Stage2Entry struct {
	Model string `json:"model"`
	// Ranking is the canonical five-line verdict text.
	Ranking string `json:"ranking"`
	// ParsedRanking lists labels best-first, completed over the label set.
	ParsedRanking []string `json:"parsed_ranking,omitempty"`
	// RawRanking preserves the pre-coercion text when it differs from Ranking.
	RawRanking      string `json:"raw_ranking,omitempty"`
	FormatFixUsed   bool   `json:"format_fix_used,omitempty"`
	FormatFixOutput string `json:"format_fix_output,omitempty"`
	Coerced         bool   `json:"coerced,omitempty"`
	Partial         bool   `json:"partial,omitempty"`
	PartialReason   string `json:"partial_reason,omitempty"`
	Synthetic       bool   `json:"synthetic,omitempty"`
	Adjudicator     bool   `json:"adjudicator,omitempty"`
}

// AggregateRanking is the averaged standing of one council model.
type AggregateRanking struct {
	Model             string   `json:"model"`
	AverageRank       float64  `json:"average_rank"`
	RankingsCount     int      `json:"rankings_count"`
	Disqualified      bool     `json:"disqualified,omitempty"`
	DisqualifyReasons []string `json:"disqualify_reasons,omitempty"`
}

// Stage3Result is the chairman synthesis.
type Stage3Result struct {
	Model        string               `json:"model"`
	Response     string               `json:"response"`
	ContractEval *contract.Evaluation `json:"contract_eval,omitempty"`
	RepairUsed   bool                 `json:"repair_used,omitempty"`
	// Error carries the stage-level failure note on degraded runs.
	Error string `json:"error,omitempty"`
}

// Meta carries the run-level bookkeeping clients need to interpret a result.
type Meta struct {
	ContractStack     []string           `json:"contract_stack"`
	LabelToModel      map[string]string  `json:"label_to_model"`
	ModelRoles        map[string]string  `json:"model_roles,omitempty"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// CouncilResult is the full output of one deliberation run.
type CouncilResult struct {
	Stage1 []Stage1Entry `json:"stage1"`
	Stage2 []Stage2Entry `json:"stage2"`
	Stage3 Stage3Result  `json:"stage3"`
	Meta   Meta          `json:"meta"`
	// Timestamp is RFC3339 UTC at completion.
	Timestamp string `json:"timestamp"`
}
