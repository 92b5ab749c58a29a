package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/application/usecase"
	"github.com/llmcouncil/llmcouncil/backend/internal/domain/service"
)

// CouncilHandler 议会消息处理器 (同步 + SSE 流式)
type CouncilHandler struct {
	uc     *usecase.CouncilUseCase
	logger *zap.Logger
}

func NewCouncilHandler(uc *usecase.CouncilUseCase, logger *zap.Logger) *CouncilHandler {
	return &CouncilHandler{uc: uc, logger: logger}
}

type sendMessageRequest struct {
	Content   string `json:"content" binding:"required"`
	Contracts string `json:"contracts"`
}

// SendMessage POST /api/conversations/:id/messages
// Runs the full council synchronously and returns the assistant turn with
// its complete payload.
func (h *CouncilHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.uc.SendMessage(c.Request.Context(), c.Param("id"), req.Content, req.Contracts)
	if err != nil {
		if c.Request.Context().Err() != nil {
			// Client gone; nothing useful to write.
			c.Abort()
			return
		}
		h.logger.Error("Council run failed", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      messageView(res.Assistant),
		"user_message": messageView(res.UserMessage),
		"conversation": conversationView(res.Conversation, false),
	})
}

// StreamMessage POST /api/conversations/:id/messages/stream
// SSE: stage events as they happen, then title_complete (when the title
// changed) and complete with the full assistant turn.
func (h *CouncilHandler) StreamMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Resolve the conversation before committing to the event stream so
	// unknown IDs still get a plain 404.
	if _, err := h.uc.GetConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	emit := func(event string, payload interface{}) {
		data, err := json.Marshal(payload)
		if err != nil {
			h.logger.Error("Failed to marshal SSE payload", zap.String("event", event), zap.Error(err))
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		c.Writer.Flush()
	}

	res, err := h.uc.SendMessageStream(c.Request.Context(), c.Param("id"), req.Content, req.Contracts, func(ev service.Event) {
		emit(ev.Type, ev)
	})
	if err != nil {
		if c.Request.Context().Err() != nil {
			return
		}
		h.logger.Error("Council stream failed", zap.Error(err))
		emit("error", gin.H{"error": err.Error(), "status": statusFor(err)})
		return
	}

	if res.TitleChanged {
		emit("title_complete", gin.H{
			"title":        res.Conversation.Title,
			"title_source": res.Conversation.TitleSource,
		})
	}
	emit("complete", messageView(res.Assistant))
}
