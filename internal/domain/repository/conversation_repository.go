package repository

import (
	"context"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
)

// ConversationRepository 会话仓储接口（遵循依赖倒置原则）
// 定义在领域层，实现在基础设施层
type ConversationRepository interface {
	// FindByID 根据ID查找会话
	FindByID(ctx context.Context, id string) (*entity.Conversation, error)

	// FindAll 查找所有会话, 按创建时间倒序
	FindAll(ctx context.Context) ([]*entity.Conversation, error)

	// Save 保存会话（创建或更新, 含标题变更）
	Save(ctx context.Context, conversation *entity.Conversation) error

	// Delete 删除会话及其消息
	Delete(ctx context.Context, id string) error

	// Exists 判断会话是否存在
	Exists(ctx context.Context, id string) (bool, error)
}
