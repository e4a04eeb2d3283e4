package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messagehub/internal/models"
	"messagehub/internal/service/messaging"
)

type createConversationRequest struct {
	Participants []string `json:"participants"`
}

type conversationMessageRequest struct {
	Body            string  `json:"message_body"`
	ParentMessageID *string `json:"parent_message_id"`
}

func (h *Handler) listConversations(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	convs, err := h.messaging.ListConversations(c.Request.Context(), userID, messaging.ListConversationsParams{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if convs == nil {
		convs = make([]*models.Conversation, 0)
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) createConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	conv, err := h.messaging.CreateConversation(c.Request.Context(), userID, req.Participants)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) getConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	conv, err := h.messaging.GetConversation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) deleteConversation(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.messaging.DeleteConversation(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) conversationMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	msgs, err := h.messaging.ConversationMessages(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if msgs == nil {
		msgs = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) createConversationMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req conversationMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.messaging.CreateMessage(c.Request.Context(), userID, messaging.CreateMessageInput{
		ConversationID:  c.Param("id"),
		Body:            req.Body,
		ParentMessageID: req.ParentMessageID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
