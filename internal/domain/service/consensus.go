package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
)

// voteTally summarizes top-1 votes among qualifying judges.
type voteTally struct {
	votes    map[string]int // label -> top-1 votes
	total    int            // qualifying judges
	leader   string
	leaderN  int
	distinct int
}

// tallyTop1 counts top-1 votes among non-synthetic, non-partial entries.
// Ties keep the label that appears first in label order stable via sorted
// iteration below.
func tallyTop1(entries []entity.Stage2Entry) voteTally {
	t := voteTally{votes: make(map[string]int)}
	for _, entry := range entries {
		if entry.Synthetic || entry.Partial || len(entry.ParsedRanking) == 0 {
			continue
		}
		t.votes[entry.ParsedRanking[0]]++
		t.total++
	}
	t.distinct = len(t.votes)

	labels := make([]string, 0, len(t.votes))
	for label := range t.votes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		if t.votes[label] > t.leaderN {
			t.leader = label
			t.leaderN = t.votes[label]
		}
	}
	return t
}

// summary renders the disagreement line for the adjudicator prompt:
// "A:2, B:1, C:1" — counts descending, label ascending on ties.
func (t voteTally) summary() string {
	type vote struct {
		label string
		n     int
	}
	votes := make([]vote, 0, len(t.votes))
	for label, n := range t.votes {
		votes = append(votes, vote{label, n})
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].n != votes[j].n {
			return votes[i].n > votes[j].n
		}
		return votes[i].label < votes[j].label
	})
	parts := make([]string, len(votes))
	for i, v := range votes {
		parts[i] = fmt.Sprintf("%s:%d", letterOf(v.label), v.n)
	}
	return strings.Join(parts, ", ")
}

// maybeAdjudicate appends one adjudicator verdict when the judges failed to
// reach consensus on the best response. Returns the (possibly extended)
// entry list and whether adjudication ran.
func (e *Engine) maybeAdjudicate(ctx context.Context, entries []entity.Stage2Entry, judges []string, jc *judgeContext) ([]entity.Stage2Entry, bool) {
	if !e.cfg.AdjudicateEnabled {
		return entries, false
	}

	tally := tallyTop1(entries)
	if tally.total < e.cfg.MinNonPartial || tally.distinct < 2 {
		return entries, false
	}

	required := e.cfg.MinTop1Votes
	if required <= 0 {
		required = 2
		if tally.total >= 4 {
			required = 3
		}
	}
	if tally.leaderN >= required {
		return entries, false
	}

	model, collided := e.pickAdjudicator(judges)
	e.logger.Info("Consensus threshold not met, adjudicating",
		zap.String("votes", tally.summary()),
		zap.Int("required", required),
		zap.String("adjudicator", model),
	)
	e.hooks.OnAdjudication()

	adjCtx := &judgeContext{
		rubric: "The judge panel disagreed on the best response (top-1 votes: " + tally.summary() + "). " +
			"You are the adjudicating judge; weigh the responses independently.\n\n" + jc.rubric,
		labels:    jc.labels,
		example:   jc.example,
		responses: jc.responses,
	}

	entry := e.judgeOne(ctx, model, adjCtx)
	entry.Adjudicator = true
	if collided {
		entry.Model = model + " (adjudicator)"
	}
	return append(entries, entry), true
}

// pickAdjudicator chooses a judge model not already on the panel: the
// configured adjudicator first, then the fallback list in order. When every
// candidate is already a judge, the configured model is reused and the
// returned collided flag tells the caller to suffix its entry.
func (e *Engine) pickAdjudicator(judges []string) (string, bool) {
	inSet := make(map[string]bool, len(judges))
	for _, j := range judges {
		inSet[j] = true
	}

	if !inSet[e.cfg.AdjudicatorModel] {
		return e.cfg.AdjudicatorModel, false
	}
	for _, fb := range e.cfg.AdjudicatorFallbacks {
		if fb != "" && !inSet[fb] {
			return fb, false
		}
	}
	return e.cfg.AdjudicatorModel, true
}
