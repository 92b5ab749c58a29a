package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/llmcouncil/llmcouncil/backend/internal/domain/entity"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
	domainErrors "github.com/llmcouncil/llmcouncil/backend/pkg/errors"
)

// statusFor maps application errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domainErrors.IsInvalidInput(err):
		return http.StatusBadRequest
	case domainErrors.IsNotFound(err):
		return http.StatusNotFound
	case domainErrors.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a JSON error body. Stage-1 collapse carries the stage
// so clients can tell "the council never convened" from a synthesis failure.
func respondError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if errors.Is(err, service.ErrStage1AllFailed) {
		body["stage"] = "stage1"
	}
	c.JSON(statusFor(err), body)
}

// conversationView is the list/detail shape for conversations.
func conversationView(conv *entity.Conversation, withMessages bool) gin.H {
	view := gin.H{
		"id":           conv.ID,
		"title":        conv.Title,
		"title_source": conv.TitleSource,
		"created_at":   conv.CreatedAt,
	}
	if withMessages {
		msgs := make([]gin.H, len(conv.Messages))
		for i := range conv.Messages {
			msgs[i] = messageView(&conv.Messages[i])
		}
		view["messages"] = msgs
	}
	return view
}

// messageView flattens a stored message for clients. Assistant turns expose
// the council payload under both "meta" and "metadata"; older clients read
// the latter.
func messageView(m *entity.StoredMessage) gin.H {
	view := gin.H{
		"id":              m.ID,
		"conversation_id": m.ConversationID,
		"role":            m.Role,
		"content":         m.Content,
		"created_at":      m.CreatedAt,
	}
	if m.Payload != nil {
		view["stage1"] = m.Payload.Stage1
		view["stage2"] = m.Payload.Stage2
		view["stage3"] = m.Payload.Stage3
		view["meta"] = m.Payload.Meta
		view["metadata"] = m.Payload.Meta
		view["timestamp"] = m.Payload.Timestamp
	}
	return view
}
