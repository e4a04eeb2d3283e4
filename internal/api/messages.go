package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messagehub/internal/models"
	"messagehub/internal/service/messaging"
)

type editMessageRequest struct {
	Body *string `json:"message_body"`
}

func (h *Handler) listMessages(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	filter := messaging.MessageFilter{
		User:         c.Query("user"),
		Conversation: c.Query("conversation"),
		Search:       c.Query("search"),
		Ordering:     c.Query("ordering"),
	}
	var err error
	if filter.StartDate, err = parseTimeQuery(c, "start_date"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be an RFC3339 timestamp"})
		return
	}
	if filter.EndDate, err = parseTimeQuery(c, "end_date"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be an RFC3339 timestamp"})
		return
	}
	if filter.Page, err = parseIntQuery(c, "page"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	if filter.PageSize, err = parseIntQuery(c, "page_size"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page_size"})
		return
	}
	page, err := h.messaging.ListMessages(c.Request.Context(), userID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if page.Results == nil {
		page.Results = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) createMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req messaging.CreateMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.messaging.CreateMessage(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) getMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	msg, err := h.messaging.GetMessage(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) editMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_body is required"})
		return
	}
	msg, err := h.messaging.EditMessage(c.Request.Context(), userID, c.Param("id"), *req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.messaging.DeleteMessage(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) messageHistory(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	history, err := h.messaging.MessageHistory(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if history == nil {
		history = make([]*models.MessageHistory, 0)
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) messageThread(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	thread, err := h.messaging.Thread(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseIntQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
