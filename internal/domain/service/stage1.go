package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/role"
)

// ErrStage1AllFailed means no generator produced a real answer and at least
// one call errored. The pipeline cannot proceed without stage-1 material.
var ErrStage1AllFailed = errors.New("all models failed to respond in stage 1")

// SyntheticResponse is the placeholder body of a synthetic stage-1 entry.
const SyntheticResponse = "(No response from model.)"

const (
	stage1Temperature = 0.3
	// googleRetryPause precedes the single retry given to google/* models,
	// which intermittently surface a request id instead of content.
	googleRetryPause = 150 * time.Millisecond
)

// runStage1 fans generation out across every configured generator model.
// The result always holds one entry per configured model, in configured
// order: labels derive from slot position, so order and length are part of
// the contract with stage 2 and the aggregator.
func (e *Engine) runStage1(ctx context.Context, userPrompt string, stack []string) ([]entity.Stage1Entry, error) {
	models := e.cfg.Stage1Models
	entries := make([]entity.Stage1Entry, len(models))
	callErrs := make([]error, len(models))

	var wg sync.WaitGroup
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			entries[i], callErrs[i] = e.generateOne(ctx, model, userPrompt, stack)
		}(i, model)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	allSynthetic := true
	anyError := false
	for i := range entries {
		if !entries[i].Synthetic {
			allSynthetic = false
		}
		if callErrs[i] != nil {
			anyError = true
			e.diag.Record("stage1", models[i], callErrs[i])
		}
	}
	if allSynthetic && anyError {
		return nil, ErrStage1AllFailed
	}
	return entries, nil
}

// generateOne runs a single generator: contract stack + role persona + user
// prompt, with one retry for google models on empty or failed first attempts.
func (e *Engine) generateOne(ctx context.Context, model, userPrompt string, stack []string) (entity.Stage1Entry, error) {
	messages := e.memberMessages(model, userPrompt, stack)
	req := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: stage1Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}

	e.hooks.OnStageCall("stage1", model)
	text, err := e.chat.Chat(ctx, req)
	text = strings.TrimSpace(text)

	if (err != nil || text == "") && strings.HasPrefix(model, "google/") && ctx.Err() == nil {
		e.logger.Debug("Retrying google generator after empty first attempt",
			zap.String("model", model), zap.Error(err))
		if sleepCtx(ctx, googleRetryPause) {
			e.hooks.OnStageCall("stage1", model)
			text, err = e.chat.Chat(ctx, req)
			text = strings.TrimSpace(text)
		}
	}

	if err != nil || text == "" {
		reason := "empty_response"
		if err != nil {
			reason = ClassifyError(err, model).Kind.String()
		}
		e.hooks.OnSynthetic("stage1")
		return entity.Stage1Entry{
			Model:           model,
			Response:        SyntheticResponse,
			Synthetic:       true,
			SyntheticReason: reason,
		}, err
	}

	return entity.Stage1Entry{
		Model:        model,
		Response:     text,
		ContractEval: e.contracts.Evaluate(userPrompt, text, stack, "stage1"),
	}, nil
}

// memberMessages builds the message stack for a council member: contract
// system messages, then the role persona, then the user prompt.
func (e *Engine) memberMessages(model, userPrompt string, stack []string) []ChatMessage {
	var msgs []ChatMessage
	for _, m := range e.contracts.SystemMessages(stack) {
		msgs = append(msgs, ChatMessage{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, SystemMessage(role.For(model).SystemPrompt))
	msgs = append(msgs, UserMessage(userPrompt))
	return msgs
}

// sleepCtx pauses for d unless the context ends first. Reports whether the
// full pause elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
