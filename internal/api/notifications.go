package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messagehub/internal/models"
)

func (h *Handler) listNotifications(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	ctx := c.Request.Context()
	notes, err := h.messaging.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.messaging.UnreadCount(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if notes == nil {
		notes = make([]*models.Notification, 0)
	}
	c.JSON(http.StatusOK, gin.H{
		"unread_count": unread,
		"results":      notes,
	})
}

func (h *Handler) markNotificationRead(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	note, err := h.messaging.MarkNotificationRead(c.Request.Context(), userID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *Handler) markAllRead(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	n, err := h.messaging.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) streamNotifications(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if h.stream == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notification stream unavailable"})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	feed, unsubscribe := h.stream.Subscribe(userID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case note, open := <-feed:
			if !open {
				return
			}
			if err := sendEvent("notification", note); err != nil {
				return
			}
		case <-ping.C:
			if err := sendEvent("ping", gin.H{"time": h.opts.Now().UTC()}); err != nil {
				return
			}
		}
	}
}
