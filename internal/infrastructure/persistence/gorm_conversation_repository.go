package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/repository"
	"github.com/llmcouncil/llmcouncil/backend/internal/infrastructure/persistence/models"
	domainErrors "github.com/llmcouncil/llmcouncil/backend/pkg/errors"
)

// GormConversationRepository GORM 实现的会话仓储
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建 GORM 会话仓储
func NewGormConversationRepository(db *gorm.DB) repository.ConversationRepository {
	return &GormConversationRepository{
		db: db,
	}
}

// FindByID 根据ID查找会话
func (r *GormConversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	var model models.ConversationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainErrors.NewNotFoundError("conversation not found")
		}
		return nil, domainErrors.NewInternalError("failed to find conversation: " + err.Error())
	}
	return r.toEntity(&model), nil
}

// FindAll 查找所有会话, 按创建时间倒序
func (r *GormConversationRepository) FindAll(ctx context.Context) ([]*entity.Conversation, error) {
	var rows []models.ConversationModel
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, domainErrors.NewInternalError("failed to list conversations: " + err.Error())
	}

	conversations := make([]*entity.Conversation, 0, len(rows))
	for i := range rows {
		conversations = append(conversations, r.toEntity(&rows[i]))
	}
	return conversations, nil
}

// Save 保存会话（创建或更新）
func (r *GormConversationRepository) Save(ctx context.Context, conversation *entity.Conversation) error {
	model := r.toModel(conversation)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		return domainErrors.NewInternalError("failed to save conversation: " + err.Error())
	}
	return nil
}

// Delete 删除会话及其消息
func (r *GormConversationRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.ConversationModel{}, "id = ?", id)
	if result.Error != nil {
		return domainErrors.NewInternalError("failed to delete conversation: " + result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return domainErrors.NewNotFoundError("conversation not found")
	}
	if err := r.db.WithContext(ctx).Delete(&models.MessageModel{}, "conversation_id = ?", id).Error; err != nil {
		return domainErrors.NewInternalError("failed to delete conversation messages: " + err.Error())
	}
	return nil
}

// Exists 判断会话是否存在
func (r *GormConversationRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationModel{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, domainErrors.NewInternalError("failed to check conversation: " + err.Error())
	}
	return count > 0, nil
}

// 转换方法

func (r *GormConversationRepository) toModel(conversation *entity.Conversation) *models.ConversationModel {
	return &models.ConversationModel{
		ID:          conversation.ID,
		Title:       conversation.Title,
		TitleSource: conversation.TitleSource,
		CreatedAt:   conversation.CreatedAt,
	}
}

func (r *GormConversationRepository) toEntity(model *models.ConversationModel) *entity.Conversation {
	return &entity.Conversation{
		ID:          model.ID,
		Title:       model.Title,
		TitleSource: model.TitleSource,
		CreatedAt:   model.CreatedAt,
	}
}
