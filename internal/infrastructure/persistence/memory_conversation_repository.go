package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/repository"
	"github.com/llmcouncil/llmcouncil/backend/pkg/errors"
)

// MemoryConversationRepository 内存实现的会话仓储（用于开发/测试）
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entity.Conversation
}

// NewMemoryConversationRepository 创建内存会话仓储
func NewMemoryConversationRepository() repository.ConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*entity.Conversation),
	}
}

// FindByID 根据ID查找会话
func (r *MemoryConversationRepository) FindByID(ctx context.Context, id string) (*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errors.NewNotFoundError("conversation not found")
	}
	clone := *conversation
	return &clone, nil
}

// FindAll 查找所有会话, 按创建时间倒序
func (r *MemoryConversationRepository) FindAll(ctx context.Context) ([]*entity.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conversations := make([]*entity.Conversation, 0, len(r.conversations))
	for _, conversation := range r.conversations {
		clone := *conversation
		conversations = append(conversations, &clone)
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})
	return conversations, nil
}

// Save 保存会话（创建或更新）
func (r *MemoryConversationRepository) Save(ctx context.Context, conversation *entity.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *conversation
	r.conversations[conversation.ID] = &clone
	return nil
}

// Delete 删除会话
func (r *MemoryConversationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		return errors.NewNotFoundError("conversation not found")
	}
	delete(r.conversations, id)
	return nil
}

// Exists 判断会话是否存在
func (r *MemoryConversationRepository) Exists(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.conversations[id]
	return ok, nil
}
