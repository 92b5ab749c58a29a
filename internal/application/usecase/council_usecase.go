package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/repository"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	domainErrors "github.com/llmcouncil/llmcouncil/backend/pkg/errors"
)

// CouncilRunner 议会执行入口, *service.Engine 满足该接口
type CouncilRunner interface {
	RunCouncil(ctx context.Context, prompt string, opts service.Options) (*entity.CouncilResult, error)
}

// RunRecorder 运行计数回调 (monitoring.Monitor 满足该接口), 可为 nil
type RunRecorder interface {
	IncCouncilTotal()
	IncCouncilSuccess()
	IncCouncilFailed()
	RecordCouncilLatency(d time.Duration)
}

// CouncilUseCase 会话管理与议会编排的应用服务
type CouncilUseCase struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
	engine   CouncilRunner
	recorder RunRecorder
	logger   *zap.Logger
}

// NewCouncilUseCase 创建应用服务. recorder 可为 nil (不做运行计数).
func NewCouncilUseCase(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	engine CouncilRunner,
	recorder RunRecorder,
	logger *zap.Logger,
) *CouncilUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouncilUseCase{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		engine:   engine,
		recorder: recorder,
		logger:   logger,
	}
}

// CreateConversation creates a conversation. An empty title keeps the
// placeholder until the first message derives one.
func (uc *CouncilUseCase) CreateConversation(ctx context.Context, title string) (*entity.Conversation, error) {
	conv, err := entity.NewConversation(uuid.NewString(), strings.TrimSpace(title))
	if err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}
	if err := uc.convRepo.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns all conversations, newest first.
func (uc *CouncilUseCase) ListConversations(ctx context.Context) ([]*entity.Conversation, error) {
	return uc.convRepo.FindAll(ctx)
}

// GetConversation returns one conversation with its messages populated.
func (uc *CouncilUseCase) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	conv, err := uc.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := uc.msgRepo.FindByConversationID(ctx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	conv.Messages = make([]entity.StoredMessage, len(msgs))
	for i, m := range msgs {
		conv.Messages[i] = *m
	}
	return conv, nil
}

// RenameConversation sets a user-chosen title. User titles are never
// overwritten by derived or chairman titles afterwards.
func (uc *CouncilUseCase) RenameConversation(ctx context.Context, id, title string) (*entity.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainErrors.NewInvalidInputError("title must not be empty")
	}
	conv, err := uc.convRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	conv.TitleSource = entity.TitleSourceUser
	if err := uc.convRepo.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages.
func (uc *CouncilUseCase) DeleteConversation(ctx context.Context, id string) error {
	return uc.convRepo.Delete(ctx, id)
}

// SendResult bundles a completed council run with the persisted artifacts.
type SendResult struct {
	Conversation *entity.Conversation
	UserMessage  *entity.StoredMessage
	Assistant    *entity.StoredMessage
	Result       *entity.CouncilResult
	TitleChanged bool
}

// SendMessage runs one council turn without progress events.
func (uc *CouncilUseCase) SendMessage(ctx context.Context, conversationID, content, contractsCSV string) (*SendResult, error) {
	return uc.SendMessageStream(ctx, conversationID, content, contractsCSV, nil)
}

// SendMessageStream persists the user turn, runs the council (forwarding
// progress events), persists the assistant turn, and applies the titling
// rules: the first message derives a provisional title, and the chairman
// answer upgrades titles the user never customized.
func (uc *CouncilUseCase) SendMessageStream(
	ctx context.Context,
	conversationID, content, contractsCSV string,
	events func(service.Event),
) (*SendResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainErrors.NewInvalidInputError("message content must not be empty")
	}
	conv, err := uc.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg, err := entity.NewUserMessage(uuid.NewString(), conv.ID, content)
	if err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}
	if err := uc.msgRepo.Save(ctx, userMsg); err != nil {
		return nil, err
	}

	titleChanged := false
	if conv.TitleSource == entity.TitleSourceDefault {
		if title := DeriveTitle(content); title != "" {
			conv.Title = title
			conv.TitleSource = entity.TitleSourceDerived
			titleChanged = true
		}
	}

	if uc.recorder != nil {
		uc.recorder.IncCouncilTotal()
	}
	started := time.Now()
	result, err := uc.engine.RunCouncil(ctx, content, service.Options{
		ContractsCSV: contractsCSV,
		Events:       events,
	})
	if uc.recorder != nil {
		uc.recorder.RecordCouncilLatency(time.Since(started))
	}
	if err != nil {
		if uc.recorder != nil {
			uc.recorder.IncCouncilFailed()
		}
		if titleChanged {
			if saveErr := uc.convRepo.Save(ctx, conv); saveErr != nil {
				uc.logger.Warn("Failed to persist provisional title", zap.Error(saveErr))
			}
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, domainErrors.NewUpstreamError("council run failed", err)
	}
	if uc.recorder != nil {
		uc.recorder.IncCouncilSuccess()
	}

	assistant, err := entity.NewAssistantMessage(uuid.NewString(), conv.ID, result)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to build assistant message", err)
	}
	if err := uc.msgRepo.Save(ctx, assistant); err != nil {
		return nil, err
	}

	if conv.TitleSource == entity.TitleSourceDefault || conv.TitleSource == entity.TitleSourceDerived {
		if title := ChairmanTitle(result.Stage3.Response); title != "" && title != conv.Title {
			conv.Title = title
			conv.TitleSource = entity.TitleSourceChairman
			titleChanged = true
		}
	}
	if titleChanged {
		if err := uc.convRepo.Save(ctx, conv); err != nil {
			uc.logger.Warn("Failed to persist conversation title", zap.Error(err))
		}
	}

	uc.logger.Info("Council turn completed",
		zap.String("conversation_id", conv.ID),
		zap.String("chairman_model", result.Stage3.Model),
		zap.Bool("title_changed", titleChanged),
	)
	return &SendResult{
		Conversation: conv,
		UserMessage:  userMsg,
		Assistant:    assistant,
		Result:       result,
		TitleChanged: titleChanged,
	}, nil
}
