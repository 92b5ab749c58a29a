package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/llmcouncil/llmcouncil/backend/internal/application/usecase"
)

// ConversationHandler 会话 CRUD 处理器
type ConversationHandler struct {
	uc     *usecase.CouncilUseCase
	logger *zap.Logger
}

func NewConversationHandler(uc *usecase.CouncilUseCase, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{uc: uc, logger: logger}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type renameConversationRequest struct {
	Title string `json:"title" binding:"required"`
}

// List GET /api/conversations
func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.uc.ListConversations(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list conversations", zap.Error(err))
		respondError(c, err)
		return
	}
	views := make([]gin.H, len(convs))
	for i, conv := range convs {
		views[i] = conversationView(conv, false)
	}
	c.JSON(http.StatusOK, gin.H{"conversations": views, "count": len(views)})
}

// Create POST /api/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.uc.CreateConversation(c.Request.Context(), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conversationView(conv, false))
}

// Get GET /api/conversations/:id
func (h *ConversationHandler) Get(c *gin.Context) {
	conv, err := h.uc.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationView(conv, true))
}

// Rename PATCH /api/conversations/:id
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req renameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.uc.RenameConversation(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversationView(conv, false))
}

// Delete DELETE /api/conversations/:id
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.uc.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
