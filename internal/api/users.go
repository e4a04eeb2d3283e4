package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"messagehub/internal/auth"
	"messagehub/internal/models"
)

func (h *Handler) me(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	user, err := h.messaging.GetUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) deleteMe(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	username, err := h.messaging.DeleteUser(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.Revoke(ctx, token); err != nil {
			slog.WarnContext(ctx, "revoke token of deleted user failed", slog.String("user_id", userID), slog.Any("err", err))
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("User %s and all related data have been deleted.", username),
	})
}

func (h *Handler) adminListUsers(c *gin.Context) {
	users, err := h.messaging.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if users == nil {
		users = make([]*models.User, 0)
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) adminDeleteMessage(c *gin.Context) {
	if err := h.messaging.DeleteMessageAsModerator(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setRoleRequest struct {
	Role models.Role `json:"role"`
}

func (h *Handler) adminSetRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Role == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	user, err := h.messaging.SetUserRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
