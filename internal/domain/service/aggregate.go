package service

import (
	"sort"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
)

// aggregateRankings averages judge ranks per generator model.
//
// Only full (non-partial) verdicts vote; the adjudicator votes like any other
// judge. Generators whose stage-1 contract eval is ineligible are
// disqualified and carry the 9998 sentinel; labeled models nobody ranked
// carry 9999. Sort order is (disqualified last, average rank ascending),
// stable on label order for ties.
func aggregateRankings(stage2 []entity.Stage2Entry, labels []string, labelToModel map[string]string, stage1 []entity.Stage1Entry) []entity.AggregateRanking {
	disqualified := make(map[string][]string) // model -> reasons
	for _, entry := range stage1 {
		if entry.ContractEval != nil && !entry.ContractEval.Eligible {
			disqualified[entry.Model] = entry.ContractEval.HardFailures
		}
		if entry.Synthetic {
			disqualified[entry.Model] = append(disqualified[entry.Model], "synthetic_entry")
		}
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, entry := range stage2 {
		if entry.Partial {
			continue
		}
		for i, label := range entry.ParsedRanking {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			if _, dq := disqualified[model]; dq {
				continue
			}
			sums[model] += float64(i + 1)
			counts[model]++
		}
	}

	aggregates := make([]entity.AggregateRanking, 0, len(labels))
	for _, label := range labels {
		model := labelToModel[label]
		agg := entity.AggregateRanking{Model: model}
		switch {
		case len(disqualified[model]) > 0:
			agg.AverageRank = entity.DisqualifiedRank
			agg.Disqualified = true
			agg.DisqualifyReasons = disqualified[model]
		case counts[model] > 0:
			agg.AverageRank = sums[model] / float64(counts[model])
			agg.RankingsCount = counts[model]
		default:
			agg.AverageRank = entity.UnrankedRank
		}
		aggregates = append(aggregates, agg)
	}

	sort.SliceStable(aggregates, func(i, j int) bool {
		if aggregates[i].Disqualified != aggregates[j].Disqualified {
			return !aggregates[i].Disqualified
		}
		return aggregates[i].AverageRank < aggregates[j].AverageRank
	})
	return aggregates
}
