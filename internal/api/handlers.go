package api

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"messagehub/internal/auth"
	"messagehub/internal/config"
	"messagehub/internal/middleware"
	"messagehub/internal/models"
	"messagehub/internal/ratelimit"
	"messagehub/internal/service/messaging"
)

// NotificationStream hands out live notification feeds.
type NotificationStream interface {
	Subscribe(userID string) (<-chan *models.Notification, func())
}

// Options configures the global request hooks.
type Options struct {
	Middleware config.MiddlewareConfig
	// Limiter backs the message rate limit; an in-memory window is used when nil.
	Limiter ratelimit.Limiter
	// RequestLog receives one line per request; io.Discard when nil.
	RequestLog io.Writer
	// Now is the clock used by the logging and time window hooks.
	Now func() time.Time
	// PingInterval spaces keep-alive events on the notification stream.
	PingInterval time.Duration
}

// Handler wires HTTP routes to the messaging and auth services.
type Handler struct {
	messaging *messaging.Service
	auth      *auth.Service
	stream    NotificationStream
	opts      Options
	window    gin.HandlerFunc
}

// NewHandler constructs a Handler. stream may be nil, in which case the
// notification stream answers 503.
func NewHandler(msgService *messaging.Service, authService *auth.Service, stream NotificationStream, opts Options) (*Handler, error) {
	if opts.RequestLog == nil {
		opts.RequestLog = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.Middleware.RateLimit <= 0 {
		opts.Middleware.RateLimit = 5
	}
	if opts.Limiter == nil {
		window := opts.Middleware.RateWindow()
		if window <= 0 {
			window = time.Minute
		}
		opts.Limiter = ratelimit.NewWindow(opts.Middleware.RateLimit, window)
	}
	h := &Handler{
		messaging: msgService,
		auth:      authService,
		stream:    stream,
		opts:      opts,
	}
	if opts.Middleware.TimeWindowEnabled {
		mw, err := middleware.RestrictAccessByTime(opts.Middleware.TimeWindowStart, opts.Middleware.TimeWindowEnd, opts.Now)
		if err != nil {
			return nil, err
		}
		h.window = mw
	}
	return h, nil
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	hooks := []gin.HandlerFunc{
		h.auth.OptionalMiddleware(),
		middleware.RequestLogging(h.opts.RequestLog, h.opts.Now),
	}
	if h.window != nil {
		hooks = append(hooks, h.window)
	}
	hooks = append(hooks, middleware.OffensiveLanguage(h.opts.Limiter, h.opts.Middleware.RateLimit, h.opts.Middleware.RateLimitedPaths))
	api := router.Group("/api", hooks...)

	api.POST("/auth/register", h.register)
	api.POST("/auth/token", h.obtainToken)
	api.POST("/auth/token/refresh", h.refreshToken)
	api.POST("/auth/token/verify", h.verifyToken)

	authMW := h.auth.Middleware()
	protected := api.Group("", authMW)
	protected.POST("/auth/logout", h.logout)

	protected.GET("/conversations", h.listConversations)
	protected.POST("/conversations", h.createConversation)
	protected.GET("/conversations/:id", h.getConversation)
	protected.DELETE("/conversations/:id", h.deleteConversation)
	protected.GET("/conversations/:id/messages", h.conversationMessages)
	protected.POST("/conversations/:id/messages", h.createConversationMessage)

	protected.GET("/messages", h.listMessages)
	protected.POST("/messages", h.createMessage)
	protected.GET("/messages/:id", h.getMessage)
	protected.PATCH("/messages/:id", h.editMessage)
	protected.PUT("/messages/:id", h.editMessage)
	protected.DELETE("/messages/:id", h.deleteMessage)
	protected.GET("/messages/:id/history", h.messageHistory)
	protected.GET("/messages/:id/thread", h.messageThread)

	protected.GET("/notifications", h.listNotifications)
	protected.POST("/notifications/read-all", h.markAllRead)
	protected.POST("/notifications/:id/read", h.markNotificationRead)
	protected.GET("/notifications/stream", h.streamNotifications)

	protected.GET("/users/me", h.me)
	protected.DELETE("/users/me", h.deleteMe)

	admin := api.Group("/admin", middleware.RolePermission(models.RoleAdmin, models.RoleModerator), authMW)
	admin.GET("/users", h.adminListUsers)
	admin.DELETE("/messages/:id", h.adminDeleteMessage)
	admin.PUT("/users/:id/role", middleware.RolePermission(models.RoleAdmin), h.adminSetRole)
}

func (h *Handler) authorizedUserID(c *gin.Context) (string, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return "", false
	}
	return userID, true
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, messaging.ErrInvalidInput),
		errors.Is(err, messaging.ErrParticipantsRequired),
		errors.Is(err, messaging.ErrMessageFieldsRequired),
		errors.Is(err, messaging.ErrInvalidParent),
		errors.Is(err, messaging.ErrMessageRejected):
		status = http.StatusBadRequest
	case errors.Is(err, messaging.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrWrongTokenType),
		errors.Is(err, auth.ErrInvalidIssuer):
		status = http.StatusUnauthorized
	case errors.Is(err, messaging.ErrNotParticipant),
		errors.Is(err, messaging.ErrNotOwner),
		errors.Is(err, auth.ErrTokenNotOwned):
		status = http.StatusForbidden
	case errors.Is(err, messaging.ErrConversationNotFound),
		errors.Is(err, messaging.ErrMessageNotFound),
		errors.Is(err, messaging.ErrNotificationNotFound),
		errors.Is(err, sql.ErrNoRows):
		status = http.StatusNotFound
	case errors.Is(err, messaging.ErrEmailTaken):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.Request.URL.Path), slog.Any("err", err))
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
